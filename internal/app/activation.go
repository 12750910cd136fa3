package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hylla/splitledger/internal/domain"
)

// ActivationResult reports what one activation pass changed.
type ActivationResult struct {
	Activated bool
	// Revision is the final number of the activated revision.
	Revision int
	// ProposedRevision is the number the revision carried before renumbering.
	ProposedRevision int
	ArchivedRevision int
	// SupersededRevision is a same-day active revision that was deleted instead of archived.
	SupersededRevision int
	DeletedDrafts      []int
}

// RunActivation activates the work's latest draft revision once no split in it is
// pending. It is idempotent and a no-op when nothing is ready.
func (s *Service) RunActivation(ctx context.Context, workID string) (ActivationResult, error) {
	var result ActivationResult
	err := s.mutateWork(ctx, workID, func(scope *workScope) error {
		var err error
		result, err = s.activate(ctx, scope)
		return err
	})
	if err != nil {
		return ActivationResult{}, err
	}
	return result, nil
}

// activate performs the activation transition inside an open work scope.
func (s *Service) activate(ctx context.Context, scope *workScope) (ActivationResult, error) {
	history, err := scope.history(ctx)
	if err != nil {
		return ActivationResult{}, err
	}
	candidate, ok := history.LatestUnarchived()
	if !ok || candidate.Class() != domain.RevisionClassDraft || !candidate.Ready() {
		return ActivationResult{}, nil
	}
	previous, hasPrevious := history.Active()
	if hasPrevious && previous.HasLocked() {
		s.logger.Info("activation deferred while advance collateral is locked", "work_id", scope.workID, "revision", candidate.Number)
		return ActivationResult{}, nil
	}

	today := domain.DateOf(scope.now)
	result := ActivationResult{Activated: true, ProposedRevision: candidate.Number}
	removed := make([]int, 0)

	if hasPrevious {
		archived, err := retireRevision(ctx, scope, previous, today)
		if err != nil {
			return ActivationResult{}, err
		}
		if archived {
			result.ArchivedRevision = previous.Number
		} else {
			result.SupersededRevision = previous.Number
			removed = append(removed, previous.Number)
		}
	}
	for _, draft := range history.Drafts() {
		if draft.Number == candidate.Number {
			continue
		}
		if err := scope.deleteRevision(ctx, draft); err != nil {
			return ActivationResult{}, err
		}
		result.DeletedDrafts = append(result.DeletedDrafts, draft.Number)
		removed = append(removed, draft.Number)
	}

	removed = append(removed, candidate.Number)
	result.Revision = history.MaxNumberExcluding(removed...) + 1
	start := revisionStart(result.Revision, today)
	for _, split := range candidate.Splits {
		split.Revision = result.Revision
		split.Activate(start)
		if err := scope.UpdateSplit(ctx, split); err != nil {
			return ActivationResult{}, fmt.Errorf("activate split %d: %w", split.ID, err)
		}
	}

	metadata := map[string]string{
		"proposed_revision": strconv.Itoa(candidate.Number),
	}
	if result.ArchivedRevision > 0 {
		metadata["archived_revision"] = strconv.Itoa(result.ArchivedRevision)
	}
	if result.SupersededRevision > 0 {
		metadata["superseded_revision"] = strconv.Itoa(result.SupersededRevision)
	}
	if err := scope.emit(ctx, domain.Event{
		Kind:     domain.EventRevisionActivated,
		Revision: result.Revision,
		SplitIDs: candidate.SplitIDs(),
		Metadata: metadata,
	}); err != nil {
		return ActivationResult{}, err
	}
	s.logger.Info("revision activated", "work_id", scope.workID, "revision", result.Revision, "archived", result.ArchivedRevision, "superseded", result.SupersededRevision)
	return result, nil
}

// retireRevision archives an active revision with end date yesterday, or deletes it
// when it only became active today. It reports whether the revision was archived.
func retireRevision(ctx context.Context, scope *workScope, rev domain.Revision, today time.Time) (bool, error) {
	if start := rev.StartDate(); start != nil && domain.DateOf(*start).Equal(today) {
		if err := scope.deleteRevision(ctx, rev); err != nil {
			return false, err
		}
		return false, nil
	}
	yesterday := today.AddDate(0, 0, -1)
	for _, split := range rev.Splits {
		split.Archive(yesterday)
		if err := scope.UpdateSplit(ctx, split); err != nil {
			return false, fmt.Errorf("archive split %d: %w", split.ID, err)
		}
	}
	return true, nil
}

// revisionStart returns the start date for a newly activated revision. The first
// revision covers all time before it and has no start date.
func revisionStart(number int, today time.Time) *time.Time {
	if number <= 1 {
		return nil
	}
	start := today
	return &start
}
