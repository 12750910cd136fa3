package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/splitledger/internal/domain"
	"github.com/shopspring/decimal"
)

// SettleReport summarizes one release-day settlement sweep.
type SettleReport struct {
	BatchID string
	// Settled lists works whose first revision was activated by the sweep, in work id order.
	Settled   []string
	Failed    map[string]error
	Unvisited []string
}

// Count returns the number of works settled.
func (r SettleReport) Count() int {
	return len(r.Settled)
}

// SettleInitialAllocations activates the still-draft first revision of every live work.
// Pending shares fall back to the owner, confirmed co-holders keep theirs, and the
// resulting revision 1 is active from the beginning of time. Works carrying locked
// collateral are skipped.
func (s *Service) SettleInitialAllocations(ctx context.Context, asOf time.Time) (SettleReport, error) {
	works, err := s.repo.ListWorksWithOutstandingInvitations(ctx)
	if err != nil {
		return SettleReport{}, fmt.Errorf("list works with outstanding invitations: %w", err)
	}
	batchID := newBatchID()
	report := SettleReport{BatchID: batchID}
	s.logger.Info("settlement sweep start", "job_id", batchID, "works", len(works), "as_of", asOf.UTC().Format(time.RFC3339))
	report.Settled, report.Failed, report.Unvisited = s.sweepWorks(ctx, works, func(ctx context.Context, workID string) (bool, error) {
		return s.settleWork(ctx, workID, asOf, batchID)
	}, func(workID string, err error) {
		s.logger.Error("settlement sweep work failed", "job_id", batchID, "work_id", workID, "err", err)
	})
	s.logger.Info("settlement sweep complete", "job_id", batchID, "settled", len(report.Settled), "failed", len(report.Failed), "unvisited", len(report.Unvisited))
	return report, nil
}

// settleWork folds pending shares of a draft revision 1 into the owner and activates it.
func (s *Service) settleWork(ctx context.Context, workID string, asOf time.Time, batchID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	live, err := s.catalog.IsLive(ctx, workID)
	if err != nil {
		return false, fmt.Errorf("resolve release state: %w", err)
	}
	if !live {
		return false, nil
	}

	settled := false
	err = s.mutateWork(ctx, workID, func(scope *workScope) error {
		history, err := scope.history(ctx)
		if err != nil {
			return err
		}
		if len(history) != 1 || history[0].Number != 1 || history[0].Class() != domain.RevisionClassDraft {
			return nil
		}
		if history.HasLocked() {
			s.logger.Info("settlement skipped while advance collateral is locked", "job_id", batchID, "work_id", workID)
			return nil
		}
		first := history[0]

		owner, hasOwner := first.Owner()
		ownerRate := decimal.Zero
		kept := make([]domain.Split, 0, len(first.Splits))
		released := make([]int64, 0)
		for _, split := range first.Splits {
			switch {
			case split.IsOwner:
				ownerRate = ownerRate.Add(split.Rate)
			case split.Status == domain.SplitStatusPending:
				ownerRate = ownerRate.Add(split.Rate)
				released = append(released, split.ID)
			default:
				kept = append(kept, split)
			}
		}

		if err := scope.DeleteSplits(ctx, released); err != nil {
			return fmt.Errorf("release pending splits: %w", err)
		}
		if hasOwner {
			owner.Rate = ownerRate
			owner.Activate(nil)
			if err := scope.UpdateSplit(ctx, owner); err != nil {
				return fmt.Errorf("activate owner split %d: %w", owner.ID, err)
			}
		} else {
			ownerID, err := s.catalog.ResolveOwner(ctx, workID)
			if err != nil {
				return fmt.Errorf("resolve owner: %w", err)
			}
			owner = domain.Split{
				WorkID:    workID,
				HolderID:  ownerID,
				Rate:      ownerRate,
				Revision:  1,
				Status:    domain.SplitStatusActive,
				IsOwner:   true,
				CreatedAt: scope.now,
			}
			if owner.ID, err = scope.CreateSplit(ctx, owner); err != nil {
				return fmt.Errorf("create owner split: %w", err)
			}
		}
		for _, split := range kept {
			split.Activate(nil)
			if err := scope.UpdateSplit(ctx, split); err != nil {
				return fmt.Errorf("activate split %d: %w", split.ID, err)
			}
		}

		active := append([]int64{owner.ID}, domain.SplitIDs(kept)...)
		settled = true
		s.logger.Info("initial allocation settled", "job_id", batchID, "work_id", workID, "owner_rate", ownerRate.String(), "released", released)
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventRevisionActivated,
			Revision: 1,
			SplitIDs: normalizeSplitIDs(active),
			Metadata: map[string]string{
				"batch_id":           batchID,
				"settlement":         "release_day",
				"released_split_ids": joinSplitIDs(released),
				"as_of":              asOf.UTC().Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func joinSplitIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
