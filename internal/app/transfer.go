package app

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hylla/splitledger/internal/domain"
)

// TransferOwnershipInput holds input values for ownership transfer operations.
type TransferOwnershipInput struct {
	// Subject is a work id or an artist id covering several works.
	Subject   string
	OldHolder string
	NewHolder string
}

// TransferReport reports the outcome of one ownership transfer per work.
type TransferReport struct {
	// Transferred maps each transferred work to its new owner split id.
	Transferred map[string]int64
	// Skipped lists works whose active owner split is not held by the old holder or
	// that carry locked collateral.
	Skipped []string
	Failed  map[string]error
}

// TransferOwnership moves the active owner split of every covered work from the old
// holder to the new holder. The active revision is retired and succeeded by a new
// active revision carrying the same rates.
func (s *Service) TransferOwnership(ctx context.Context, in TransferOwnershipInput) (TransferReport, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.OldHolder = strings.TrimSpace(in.OldHolder)
	in.NewHolder = strings.TrimSpace(in.NewHolder)
	if in.Subject == "" || in.OldHolder == "" || in.NewHolder == "" {
		return TransferReport{}, domain.ErrInvalidID
	}
	if in.OldHolder == in.NewHolder {
		return TransferReport{}, fmt.Errorf("%w: old and new holder are both %s", domain.ErrInvalidID, in.OldHolder)
	}
	works, err := s.catalog.WorksFor(ctx, in.Subject)
	if err != nil {
		return TransferReport{}, fmt.Errorf("resolve works for %s: %w", in.Subject, err)
	}
	works = slices.Clone(works)
	slices.Sort(works)

	report := TransferReport{Transferred: map[string]int64{}, Failed: map[string]error{}}
	for _, workID := range slices.Compact(works) {
		splitID, err := s.transferWork(ctx, workID, in.OldHolder, in.NewHolder)
		switch {
		case err != nil:
			report.Failed[workID] = err
			s.logger.Error("ownership transfer failed", "work_id", workID, "old_holder", in.OldHolder, "new_holder", in.NewHolder, "err", err)
		case splitID == 0:
			report.Skipped = append(report.Skipped, workID)
		default:
			report.Transferred[workID] = splitID
		}
	}
	return report, nil
}

// transferWork supersedes one work's active revision. It returns the new owner split
// id, or zero when the work was skipped.
func (s *Service) transferWork(ctx context.Context, workID, oldHolder, newHolder string) (int64, error) {
	var ownerSplitID int64
	err := s.mutateWork(ctx, workID, func(scope *workScope) error {
		history, err := scope.history(ctx)
		if err != nil {
			return err
		}
		active, ok := history.Active()
		if !ok {
			return nil
		}
		owner, ok := active.Owner()
		if !ok || owner.HolderID != oldHolder {
			return nil
		}
		if history.HasLocked() {
			s.logger.Warn("ownership transfer skipped for locked splits", "work_id", workID, "revision", active.Number)
			return nil
		}

		removed := make([]int, 0)
		for _, draft := range history.Drafts() {
			if err := scope.deleteRevision(ctx, draft); err != nil {
				return err
			}
			removed = append(removed, draft.Number)
		}
		today := domain.DateOf(scope.now)
		archived, err := retireRevision(ctx, scope, active, today)
		if err != nil {
			return err
		}
		if !archived {
			removed = append(removed, active.Number)
		}
		number := history.MaxNumberExcluding(removed...) + 1
		start := revisionStart(number, today)

		successor := successorSplits(active, oldHolder, newHolder)
		newIDs := make([]int64, 0, len(successor))
		for _, split := range successor {
			split.WorkID = workID
			split.Revision = number
			split.CreatedAt = scope.now
			split.Activate(start)
			id, err := scope.CreateSplit(ctx, split)
			if err != nil {
				return fmt.Errorf("create successor split: %w", err)
			}
			if split.IsOwner {
				ownerSplitID = id
			}
			newIDs = append(newIDs, id)
		}
		s.logger.Info("ownership transferred", "work_id", workID, "revision", number, "old_holder", oldHolder, "new_holder", newHolder, "owner_split_id", ownerSplitID)
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventOwnershipTransferred,
			ActorID:  newHolder,
			Revision: number,
			SplitIDs: newIDs,
			Metadata: map[string]string{
				"old_holder":        oldHolder,
				"new_holder":        newHolder,
				"previous_revision": strconv.Itoa(active.Number),
				"previous_archived": strconv.FormatBool(archived),
				"owner_split_id":    strconv.FormatInt(ownerSplitID, 10),
			},
		})
	})
	if err != nil {
		return 0, err
	}
	return ownerSplitID, nil
}

// successorSplits copies an active revision with the owner split reassigned to
// newHolder. A co-split already held by newHolder is folded into the owner split so
// holders stay unique and the rates keep their sum.
func successorSplits(active domain.Revision, oldHolder, newHolder string) []domain.Split {
	out := make([]domain.Split, 0, len(active.Splits))
	ownerIdx := -1
	var folded []domain.Split
	for _, split := range active.Splits {
		next := domain.Split{
			HolderID: split.HolderID,
			Rate:     split.Rate,
			IsOwner:  split.IsOwner,
		}
		switch {
		case split.IsOwner && split.HolderID == oldHolder:
			next.HolderID = newHolder
			ownerIdx = len(out)
		case split.HolderID == newHolder:
			folded = append(folded, next)
			continue
		}
		out = append(out, next)
	}
	for _, split := range folded {
		out[ownerIdx].Rate = out[ownerIdx].Rate.Add(split.Rate)
	}
	return out
}
