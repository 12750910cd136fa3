package domain

import (
	"fmt"
	"strings"
	"time"
)

// ViolationCode names one class of split-history inconsistency.
type ViolationCode string

// ViolationCode values reported by CheckIntegrity.
const (
	ViolationInvalidRate       ViolationCode = "INVALID_RATE"
	ViolationOwnerMismatch     ViolationCode = "OWNER_IS_NOT_RESOLVED_OWNER"
	ViolationMissingOwner      ViolationCode = "MISSING_IS_OWNER"
	ViolationMultipleOwners    ViolationCode = "MULTIPLE_IS_OWNER"
	ViolationSameHolder        ViolationCode = "SAME_USER_SPLIT"
	ViolationRevisionOrder     ViolationCode = "INCORRECT_REVISION_ORDER"
	ViolationMultipleActive    ViolationCode = "MULTIPLE_ACTIVE_REVISIONS"
	ViolationIncorrectStatuses ViolationCode = "INCORRECT_STATUSES"
	ViolationIncorrectTimeline ViolationCode = "INCORRECT_TIMESERIES"
	ViolationNoActiveRevision  ViolationCode = "NO_ACTIVE_REVISION"
)

// Violation reports one inconsistency found in a work's split history.
type Violation struct {
	WorkID   string
	Revision int
	Code     ViolationCode
	Detail   string
}

// String renders the violation for logs and CLI output.
func (v Violation) String() string {
	if v.Revision > 0 {
		return fmt.Sprintf("%s revision %d: %s (%s)", v.WorkID, v.Revision, v.Code, v.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", v.WorkID, v.Code, v.Detail)
}

// IntegrityOptions tunes which external facts CheckIntegrity verifies.
type IntegrityOptions struct {
	// OwnerID is the resolved owner identity; empty skips the identity check.
	OwnerID string
	// Live requires an active revision once the work is publicly released.
	Live bool
}

// IntegrityError wraps the violations that blocked a write.
type IntegrityError struct {
	Violations []Violation
}

// Error implements error.
func (e *IntegrityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "split history integrity: " + strings.Join(parts, "; ")
}

// CheckIntegrity validates every at-rest invariant over one work's splits and returns
// the violations found. It never mutates its input.
func CheckIntegrity(splits []Split, opts IntegrityOptions) []Violation {
	history := NewHistory(splits)
	if len(history) == 0 {
		return nil
	}
	workID := history[0].WorkID
	out := make([]Violation, 0)
	add := func(revision int, code ViolationCode, format string, args ...any) {
		out = append(out, Violation{WorkID: workID, Revision: revision, Code: code, Detail: fmt.Sprintf(format, args...)})
	}

	for idx, rev := range history {
		if rev.Number != idx+1 {
			add(rev.Number, ViolationRevisionOrder, "expected revision %d", idx+1)
		}
		checkRevisionRates(rev, add)
		checkRevisionHolders(rev, opts.OwnerID, add)
	}

	classes := make([]RevisionClass, 0, len(history))
	actives := 0
	for _, rev := range history {
		class := rev.Class()
		classes = append(classes, class)
		if class == RevisionClassMixed {
			add(rev.Number, ViolationIncorrectStatuses, "splits mix statuses")
		}
		if class == RevisionClassActive {
			actives++
		}
	}
	if actives > 1 {
		add(0, ViolationMultipleActive, "%d active revisions", actives)
	}
	if !validClassSequence(classes) {
		add(0, ViolationIncorrectStatuses, "revision statuses %v out of order", classes)
	}
	firstDraftOnly := len(history) == 1 && history[0].Number == 1 && classes[0] == RevisionClassDraft
	if opts.Live && actives == 0 && !firstDraftOnly {
		add(0, ViolationNoActiveRevision, "live work has no active revision")
	}
	checkTimeline(history, add)
	return out
}

// checkRevisionRates verifies per-split rates and the exact revision sum.
func checkRevisionRates(rev Revision, add func(int, ViolationCode, string, ...any)) {
	for _, split := range rev.Splits {
		if err := ValidateRate(split.Rate); err != nil {
			add(rev.Number, ViolationInvalidRate, "split %d: %v", split.ID, err)
		}
	}
	if sum := rev.RateSum(); !sum.Equal(FullRate) {
		add(rev.Number, ViolationInvalidRate, "rates sum to %s", sum.String())
	}
}

// checkRevisionHolders verifies owner uniqueness, owner identity and holder uniqueness.
func checkRevisionHolders(rev Revision, ownerID string, add func(int, ViolationCode, string, ...any)) {
	owners := 0
	seen := map[string]struct{}{}
	for _, split := range rev.Splits {
		if split.IsOwner {
			owners++
		}
		if !split.HasHolder() {
			continue
		}
		if _, ok := seen[split.HolderID]; ok {
			add(rev.Number, ViolationSameHolder, "holder %s appears twice", split.HolderID)
		}
		seen[split.HolderID] = struct{}{}
	}
	switch {
	case owners == 0:
		add(rev.Number, ViolationMissingOwner, "no owner split")
	case owners > 1:
		add(rev.Number, ViolationMultipleOwners, "%d owner splits", owners)
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || rev.Class() == RevisionClassArchived {
		return
	}
	if owner, ok := rev.Owner(); ok && owner.HolderID != ownerID {
		add(rev.Number, ViolationOwnerMismatch, "owner split held by %q, expected %q", owner.HolderID, ownerID)
	}
}

// validClassSequence accepts ARCHIVED* ACTIVE DRAFT? or a lone DRAFT.
func validClassSequence(classes []RevisionClass) bool {
	if len(classes) == 1 && classes[0] == RevisionClassDraft {
		return true
	}
	idx := 0
	for idx < len(classes) && classes[idx] == RevisionClassArchived {
		idx++
	}
	if idx >= len(classes) || classes[idx] != RevisionClassActive {
		return false
	}
	idx++
	if idx < len(classes) && classes[idx] == RevisionClassDraft {
		idx++
	}
	return idx == len(classes)
}

// checkTimeline verifies shared per-revision dates and gapless adjacency of activated revisions.
func checkTimeline(history History, add func(int, ViolationCode, string, ...any)) {
	var prev *Revision
	for i := range history {
		rev := history[i]
		start, end := rev.Splits[0].StartDate, rev.Splits[0].EndDate
		for _, split := range rev.Splits[1:] {
			if !SameDate(split.StartDate, start) || !SameDate(split.EndDate, end) {
				add(rev.Number, ViolationIncorrectTimeline, "splits disagree on dates")
				break
			}
		}
		class := rev.Class()
		if class != RevisionClassActive && class != RevisionClassArchived {
			continue
		}
		switch {
		case rev.Number == 1 && start != nil:
			add(rev.Number, ViolationIncorrectTimeline, "first revision must have no start date")
		case rev.Number > 1 && start == nil:
			add(rev.Number, ViolationIncorrectTimeline, "missing start date")
		}
		if class == RevisionClassActive && end != nil {
			add(rev.Number, ViolationIncorrectTimeline, "active revision has an end date")
		}
		if class == RevisionClassArchived && end == nil {
			add(rev.Number, ViolationIncorrectTimeline, "archived revision has no end date")
		}
		if start != nil && end != nil && end.Before(*start) {
			add(rev.Number, ViolationIncorrectTimeline, "ends %s before it starts %s", formatDate(end), formatDate(start))
		}
		if prev != nil && prev.Number == rev.Number-1 {
			prevEnd := prev.Splits[0].EndDate
			if prevEnd == nil || start == nil || !DateOf(prevEnd.AddDate(0, 0, 1)).Equal(DateOf(*start)) {
				add(rev.Number, ViolationIncorrectTimeline, "starts %s, previous revision ends %s", formatDate(start), formatDate(prevEnd))
			}
		}
		prev = &history[i]
	}
}

// formatDate renders a nullable date.
func formatDate(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.DateOnly)
}
