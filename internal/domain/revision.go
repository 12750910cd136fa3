package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RevisionClass is the status class shared by every split of a well-formed revision.
type RevisionClass string

// RevisionClass values.
const (
	RevisionClassDraft    RevisionClass = "draft"
	RevisionClassActive   RevisionClass = "active"
	RevisionClassArchived RevisionClass = "archived"
	RevisionClassMixed    RevisionClass = "mixed"
)

// Revision groups the splits of one work that share a revision number.
type Revision struct {
	WorkID string
	Number int
	Splits []Split
}

// GroupRevisions groups splits into revisions ordered by number. Splits inside a
// revision are ordered by id.
func GroupRevisions(splits []Split) []Revision {
	sorted := slices.Clone(splits)
	SortSplits(sorted)
	out := make([]Revision, 0)
	for _, split := range sorted {
		if n := len(out); n > 0 && out[n-1].Number == split.Revision {
			out[n-1].Splits = append(out[n-1].Splits, split)
			continue
		}
		out = append(out, Revision{WorkID: split.WorkID, Number: split.Revision, Splits: []Split{split}})
	}
	return out
}

// Class derives the revision's status class. Pending and confirmed splits together
// still form a draft.
func (r Revision) Class() RevisionClass {
	var draft, active, archived bool
	for _, split := range r.Splits {
		switch {
		case split.Status.IsDraft():
			draft = true
		case split.Status == SplitStatusActive:
			active = true
		case split.Status == SplitStatusArchived:
			archived = true
		}
	}
	switch {
	case draft && !active && !archived:
		return RevisionClassDraft
	case active && !draft && !archived:
		return RevisionClassActive
	case archived && !draft && !active:
		return RevisionClassArchived
	default:
		return RevisionClassMixed
	}
}

// Ready reports whether a draft revision has no pending split left.
func (r Revision) Ready() bool {
	if len(r.Splits) == 0 {
		return false
	}
	for _, split := range r.Splits {
		if split.Status == SplitStatusPending {
			return false
		}
	}
	return true
}

// RateSum returns the exact sum of the revision's rates.
func (r Revision) RateSum() decimal.Decimal {
	rates := make([]decimal.Decimal, 0, len(r.Splits))
	for _, split := range r.Splits {
		rates = append(rates, split.Rate)
	}
	return SumRates(rates...)
}

// Owner returns the revision's owner split.
func (r Revision) Owner() (Split, bool) {
	for _, split := range r.Splits {
		if split.IsOwner {
			return split, true
		}
	}
	return Split{}, false
}

// HasLocked reports whether any split of the revision is pledged as collateral.
func (r Revision) HasLocked() bool {
	return slices.ContainsFunc(r.Splits, func(s Split) bool { return s.IsLocked })
}

// HoldsSplit reports whether holderID holds a split in the revision.
func (r Revision) HoldsSplit(holderID string) bool {
	return slices.ContainsFunc(r.Splits, func(s Split) bool { return s.HasHolder() && s.HolderID == holderID })
}

// StartDate returns the start date shared by the revision's splits.
func (r Revision) StartDate() *time.Time {
	if len(r.Splits) == 0 {
		return nil
	}
	return r.Splits[0].StartDate
}

// SplitIDs returns the ids of the revision's splits.
func (r Revision) SplitIDs() []int64 {
	return SplitIDs(r.Splits)
}

// History is the ordered revision list of one work.
type History []Revision

// NewHistory groups splits into a history.
func NewHistory(splits []Split) History {
	return History(GroupRevisions(splits))
}

// Active returns the active revision, if any.
func (h History) Active() (Revision, bool) {
	for _, rev := range h {
		if rev.Class() == RevisionClassActive {
			return rev, true
		}
	}
	return Revision{}, false
}

// Latest returns the highest-numbered revision.
func (h History) Latest() (Revision, bool) {
	if len(h) == 0 {
		return Revision{}, false
	}
	return h[len(h)-1], true
}

// LatestUnarchived returns the highest revision holding at least one non-archived split.
func (h History) LatestUnarchived() (Revision, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		for _, split := range h[i].Splits {
			if split.Status != SplitStatusArchived {
				return h[i], true
			}
		}
	}
	return Revision{}, false
}

// Drafts returns every draft revision.
func (h History) Drafts() []Revision {
	out := make([]Revision, 0)
	for _, rev := range h {
		if rev.Class() == RevisionClassDraft {
			out = append(out, rev)
		}
	}
	return out
}

// MaxNumber returns the highest revision number, or 0 for an empty history.
func (h History) MaxNumber() int {
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1].Number
}

// MaxNumberExcluding returns the highest revision number outside skip.
func (h History) MaxNumberExcluding(skip ...int) int {
	out := 0
	for _, rev := range h {
		if slices.Contains(skip, rev.Number) {
			continue
		}
		out = max(out, rev.Number)
	}
	return out
}

// HasLocked reports whether any revision carries a locked split.
func (h History) HasLocked() bool {
	return slices.ContainsFunc(h, Revision.HasLocked)
}
