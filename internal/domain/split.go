package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SplitStatus identifies one lifecycle state for a split.
type SplitStatus string

// SplitStatus values.
const (
	SplitStatusPending   SplitStatus = "pending"
	SplitStatusConfirmed SplitStatus = "confirmed"
	SplitStatusActive    SplitStatus = "active"
	SplitStatusArchived  SplitStatus = "archived"
)

// validSplitStatuses stores supported split-status values.
var validSplitStatuses = []SplitStatus{
	SplitStatusPending,
	SplitStatusConfirmed,
	SplitStatusActive,
	SplitStatusArchived,
}

// DraftStatuses lists the statuses of a revision that has never been activated.
var DraftStatuses = []SplitStatus{SplitStatusPending, SplitStatusConfirmed}

// NormalizeSplitStatus canonicalizes a raw status value.
func NormalizeSplitStatus(status SplitStatus) SplitStatus {
	return SplitStatus(strings.TrimSpace(strings.ToLower(string(status))))
}

// IsValidSplitStatus reports whether status is supported.
func IsValidSplitStatus(status SplitStatus) bool {
	return slices.Contains(validSplitStatuses, NormalizeSplitStatus(status))
}

// IsDraft reports whether status belongs to a not-yet-activated revision.
func (s SplitStatus) IsDraft() bool {
	return s == SplitStatusPending || s == SplitStatusConfirmed
}

// Split is one fractional-ownership allocation record for a work.
type Split struct {
	ID        int64
	WorkID    string
	HolderID  string
	Rate      decimal.Decimal
	Revision  int
	Status    SplitStatus
	IsOwner   bool
	IsLocked  bool
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// HasHolder reports whether the split is bound to a rights-holder identity.
func (s Split) HasHolder() bool {
	return strings.TrimSpace(s.HolderID) != ""
}

// Activate marks the split live from start. A nil start means "since the beginning".
func (s *Split) Activate(start *time.Time) {
	s.Status = SplitStatusActive
	s.StartDate = cloneDate(start)
	s.EndDate = nil
}

// Archive closes the split's interval on end.
func (s *Split) Archive(end time.Time) {
	end = DateOf(end)
	s.Status = SplitStatusArchived
	s.EndDate = &end
}

// Confirm binds holderID and marks the split confirmed.
func (s *Split) Confirm(holderID string) error {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return ErrInvalidID
	}
	if s.Status != SplitStatusPending {
		return ErrInvalidStatus
	}
	s.HolderID = holderID
	s.Status = SplitStatusConfirmed
	return nil
}

// SplitIDs returns the ids of splits in input order.
func SplitIDs(splits []Split) []int64 {
	out := make([]int64, 0, len(splits))
	for _, split := range splits {
		out = append(out, split.ID)
	}
	return out
}

// SortSplits orders splits by revision then id, the ledger's canonical result order.
func SortSplits(splits []Split) {
	slices.SortStableFunc(splits, func(a, b Split) int {
		if a.Revision != b.Revision {
			return a.Revision - b.Revision
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b are both nil or fall on the same calendar date.
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return DateOf(*a).Equal(DateOf(*b))
}

// cloneDate copies a nullable date.
func cloneDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOf(*t)
	return &d
}
