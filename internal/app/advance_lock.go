package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/splitledger/internal/domain"
)

// AdvanceLockInput holds input values for advance lock and unlock operations.
type AdvanceLockInput struct {
	HolderID  string
	WorkID    string
	AdvanceID string
	SplitIDs  []int64
}

// AdvanceLockResult reports which splits changed lock state.
type AdvanceLockResult struct {
	SplitIDs []int64
	// Mismatch is set when an unlock request did not match the locked owner splits.
	Mismatch bool
	// Activation is the activation pass run after an unlock released collateral.
	Activation ActivationResult
}

// LockForAdvance locks exactly the requested owner splits as advance collateral. When
// the request does not match the caller's unlocked active owner splits, nothing is
// locked, the advance is cancelled through the configured canceller, and
// ErrLockMismatch is returned.
func (s *Service) LockForAdvance(ctx context.Context, in AdvanceLockInput) (AdvanceLockResult, error) {
	in.HolderID = strings.TrimSpace(in.HolderID)
	if in.HolderID == "" {
		return AdvanceLockResult{}, domain.ErrInvalidID
	}
	requested := normalizeSplitIDs(in.SplitIDs)
	if len(requested) == 0 {
		return AdvanceLockResult{}, nil
	}

	var resolved []int64
	err := s.mutateWork(ctx, in.WorkID, func(scope *workScope) error {
		splits, err := scope.ListSplits(ctx, SplitFilter{
			IDs:      requested,
			Statuses: []domain.SplitStatus{domain.SplitStatusActive},
		})
		if err != nil {
			return err
		}
		lockable := make([]domain.Split, 0, len(splits))
		for _, split := range splits {
			if split.IsOwner && !split.IsLocked && split.HolderID == in.HolderID {
				lockable = append(lockable, split)
			}
		}
		resolved = domain.SplitIDs(lockable)
		slices.Sort(resolved)
		if !slices.Equal(resolved, requested) {
			return nil
		}
		for _, split := range lockable {
			split.IsLocked = true
			if err := scope.UpdateSplit(ctx, split); err != nil {
				return fmt.Errorf("lock split %d: %w", split.ID, err)
			}
		}
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventAdvanceSplitsLocked,
			ActorID:  in.HolderID,
			Revision: lockable[0].Revision,
			SplitIDs: resolved,
			Metadata: map[string]string{"advance_id": in.AdvanceID},
		})
	})
	if err != nil {
		return AdvanceLockResult{}, err
	}
	if !slices.Equal(resolved, requested) {
		s.logger.Error("advance lock mismatch", "work_id", in.WorkID, "advance_id", in.AdvanceID, "requested", requested, "resolved", resolved)
		s.cancelAdvance(ctx, AdvanceCancellation{
			AdvanceID: in.AdvanceID,
			HolderID:  in.HolderID,
			WorkID:    in.WorkID,
			Requested: requested,
			Resolved:  resolved,
		})
		return AdvanceLockResult{}, fmt.Errorf("%w: requested %v, lockable %v", ErrLockMismatch, requested, resolved)
	}
	s.logger.Info("advance splits locked", "work_id", in.WorkID, "advance_id", in.AdvanceID, "split_ids", resolved)
	return AdvanceLockResult{SplitIDs: resolved}, nil
}

// cancelAdvance notifies the advance subsystem that its collateral was not locked.
func (s *Service) cancelAdvance(ctx context.Context, cancellation AdvanceCancellation) {
	if s.advances == nil {
		s.logger.Warn("no advance canceller configured", "advance_id", cancellation.AdvanceID)
		return
	}
	if err := s.advances.CancelAdvance(ctx, cancellation); err != nil {
		s.logger.Error("advance cancellation failed", "work_id", cancellation.WorkID, "advance_id", cancellation.AdvanceID, "err", err)
	}
}

// UnlockAdvance releases the requested locked owner splits. An empty request releases
// every owner split the holder has locked on the work. A mismatching request is logged
// and leaves every lock in place without returning an error.
func (s *Service) UnlockAdvance(ctx context.Context, in AdvanceLockInput) (AdvanceLockResult, error) {
	in.HolderID = strings.TrimSpace(in.HolderID)
	if in.HolderID == "" {
		return AdvanceLockResult{}, domain.ErrInvalidID
	}
	requested := normalizeSplitIDs(in.SplitIDs)

	var result AdvanceLockResult
	err := s.mutateWork(ctx, in.WorkID, func(scope *workScope) error {
		splits, err := scope.ListSplits(ctx, SplitFilter{IDs: requested})
		if err != nil {
			return err
		}
		unlockable := make([]domain.Split, 0, len(splits))
		for _, split := range splits {
			if split.IsOwner && split.IsLocked && split.HolderID == in.HolderID {
				unlockable = append(unlockable, split)
			}
		}
		resolved := domain.SplitIDs(unlockable)
		slices.Sort(resolved)
		if len(requested) > 0 && !slices.Equal(resolved, requested) {
			result.Mismatch = true
			s.logger.Error("advance unlock mismatch", "work_id", in.WorkID, "advance_id", in.AdvanceID, "requested", requested, "resolved", resolved)
			return nil
		}
		if len(unlockable) == 0 {
			return nil
		}
		for _, split := range unlockable {
			split.IsLocked = false
			if err := scope.UpdateSplit(ctx, split); err != nil {
				return fmt.Errorf("unlock split %d: %w", split.ID, err)
			}
		}
		result.SplitIDs = resolved
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventAdvanceSplitsUnlocked,
			ActorID:  in.HolderID,
			Revision: unlockable[0].Revision,
			SplitIDs: resolved,
			Metadata: map[string]string{"advance_id": in.AdvanceID},
		})
	})
	if err != nil {
		return AdvanceLockResult{}, err
	}
	if len(result.SplitIDs) == 0 {
		return result, nil
	}
	s.logger.Info("advance splits unlocked", "work_id", in.WorkID, "advance_id", in.AdvanceID, "split_ids", result.SplitIDs)

	// Drafts confirmed while collateral was locked are activated now.
	result.Activation, err = s.RunActivation(ctx, in.WorkID)
	if err != nil {
		return result, fmt.Errorf("run activation after unlock: %w", err)
	}
	return result, nil
}
