package domain

import "time"

// EventKind identifies one ledger event published for external consumers.
type EventKind string

// EventKind values emitted by the ledger.
const (
	EventInvitationCreated     EventKind = "invitation_created"
	EventSplitConfirmed        EventKind = "split_confirmed"
	EventRevisionActivated     EventKind = "revision_activated"
	EventSplitsExpired         EventKind = "splits_expired"
	EventAdvanceSplitsLocked   EventKind = "advance_splits_locked"
	EventAdvanceSplitsUnlocked EventKind = "advance_splits_unlocked"
	EventOwnershipTransferred  EventKind = "ownership_transferred"
)

// Event is one entry of the ledger outbox for a work.
type Event struct {
	ID         int64
	WorkID     string
	Kind       EventKind
	ActorID    string
	Revision   int
	SplitIDs   []int64
	Metadata   map[string]string
	OccurredAt time.Time
}
