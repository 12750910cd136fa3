package app

import (
	"context"

	"github.com/hylla/splitledger/internal/domain"
)

// SplitFilter narrows split queries inside one work. Zero values match everything.
type SplitFilter struct {
	Revision int
	Statuses []domain.SplitStatus
	IDs      []int64
}

// InvitationFilter narrows invitation queries inside one work.
type InvitationFilter struct {
	IDs      []int64
	SplitIDs []int64
	Statuses []domain.InvitationStatus
}

// Repository persists the ledger. Every mutation of a work goes through WithinWork.
type Repository interface {
	// WithinWork runs fn in the work's exclusive scope. The scope commits when fn
	// returns nil and rolls back otherwise. Contention past the configured wait
	// fails with ErrConcurrentActivation.
	WithinWork(ctx context.Context, workID string, fn func(WorkStore) error) error

	GetInvitation(context.Context, int64) (domain.Invitation, error)
	GetInvitationByToken(context.Context, string) (domain.Invitation, error)
	ListWorksWithOutstandingInvitations(context.Context) ([]string, error)
	ListSplits(context.Context, string, SplitFilter) ([]domain.Split, error)
	ListInvitations(context.Context, string, InvitationFilter) ([]domain.Invitation, error)
	ListEvents(context.Context, string, int) ([]domain.Event, error)
}

// WorkStore is the transactional view of one work handed out by WithinWork.
// Splits are always returned ordered by revision then id.
type WorkStore interface {
	ListSplits(context.Context, SplitFilter) ([]domain.Split, error)
	ListInvitations(context.Context, InvitationFilter) ([]domain.Invitation, error)
	CreateSplit(context.Context, domain.Split) (int64, error)
	UpdateSplit(context.Context, domain.Split) error
	// DeleteSplits removes splits together with their invitations.
	DeleteSplits(context.Context, []int64) error
	CreateInvitation(context.Context, domain.Invitation) (int64, error)
	UpdateInvitation(context.Context, domain.Invitation) error
	AppendEvent(context.Context, domain.Event) (domain.Event, error)
}

// Catalog answers questions owned by the catalog and release pipeline.
type Catalog interface {
	ResolveOwner(context.Context, string) (string, error)
	IsLive(context.Context, string) (bool, error)
	// WorksFor expands a work or artist id into the work ids it covers.
	WorksFor(context.Context, string) ([]string, error)
}

// AdvanceCancellation describes a rejected collateral lock.
type AdvanceCancellation struct {
	AdvanceID string
	HolderID  string
	WorkID    string
	Requested []int64
	Resolved  []int64
}

// AdvanceCanceller cancels a dependent advance request when its collateral cannot be locked.
type AdvanceCanceller interface {
	CancelAdvance(context.Context, AdvanceCancellation) error
}

// EventPublisher receives committed ledger events.
type EventPublisher interface {
	Publish(context.Context, []domain.Event) error
}

// TierResolver reports whether a party is on a paying plan.
type TierResolver interface {
	IsPaying(context.Context, string) (bool, error)
}

// Logger is the structured logging surface used by the service.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}
