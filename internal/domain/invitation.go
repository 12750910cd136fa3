package domain

import (
	"strings"
	"time"
)

// InvitationStatus identifies one lifecycle state for an invitation.
type InvitationStatus string

// InvitationStatus values.
const (
	InvitationStatusCreated  InvitationStatus = "created"
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
)

// InviteInfo carries the contact details of a party who is not yet a known holder.
type InviteInfo struct {
	Name  string
	Email string
	Phone string
}

// IsZero reports whether no contact detail is set.
func (i InviteInfo) IsZero() bool {
	return strings.TrimSpace(i.Name) == "" && strings.TrimSpace(i.Email) == "" && strings.TrimSpace(i.Phone) == ""
}

// Invitation is the confirmation request attached to a pending split.
type Invitation struct {
	ID         int64
	SplitID    int64
	WorkID     string
	InviterID  string
	InviteeID  string
	Invitee    InviteInfo
	Token      string
	Status     InvitationStatus
	LastSentAt *time.Time
	CreatedAt  time.Time
}

// Outstanding reports whether the invitation still awaits acceptance.
func (i Invitation) Outstanding() bool {
	return i.Status == InvitationStatusCreated || i.Status == InvitationStatusPending
}

// Expired reports whether a delivered invitation went unanswered past window as of asOf.
// Undelivered invitations never expire.
func (i Invitation) Expired(window time.Duration, asOf time.Time) bool {
	if i.Status != InvitationStatusPending || i.LastSentAt == nil {
		return false
	}
	return i.LastSentAt.Add(window).Before(asOf)
}

// MarkSent records a delivery of the invitation at now.
func (i *Invitation) MarkSent(now time.Time) error {
	if !i.Outstanding() {
		return ErrInvalidStatus
	}
	sent := now.UTC()
	i.Status = InvitationStatusPending
	i.LastSentAt = &sent
	return nil
}

// Accept binds the invitation to accepterID.
func (i *Invitation) Accept(accepterID string) error {
	accepterID = strings.TrimSpace(accepterID)
	if accepterID == "" {
		return ErrInvalidID
	}
	if !i.Outstanding() {
		return ErrInvalidStatus
	}
	i.InviteeID = accepterID
	i.Status = InvitationStatusAccepted
	return nil
}
