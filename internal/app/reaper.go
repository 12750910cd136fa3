package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/splitledger/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ReapReport summarizes one expiry sweep.
type ReapReport struct {
	BatchID string
	// Reaped lists works whose pending revision was discarded, in work id order.
	Reaped []string
	// Failed maps works that errored to their error. Rerunning the sweep retries them.
	Failed map[string]error
	// Unvisited lists works the sweep did not reach before ctx was cancelled.
	Unvisited []string
}

// Count returns the number of works reaped.
func (r ReapReport) Count() int {
	return len(r.Reaped)
}

// ExpireStale discards abandoned pending revisions across every work with outstanding
// invitations. Works are handled independently; one failure never aborts the sweep.
func (s *Service) ExpireStale(ctx context.Context, asOf time.Time) (ReapReport, error) {
	works, err := s.repo.ListWorksWithOutstandingInvitations(ctx)
	if err != nil {
		return ReapReport{}, fmt.Errorf("list works with outstanding invitations: %w", err)
	}
	batchID := newBatchID()
	report := ReapReport{BatchID: batchID}
	s.logger.Info("expiry sweep start", "job_id", batchID, "works", len(works), "as_of", asOf.UTC().Format(time.RFC3339))
	report.Reaped, report.Failed, report.Unvisited = s.sweepWorks(ctx, works, func(ctx context.Context, workID string) (bool, error) {
		return s.reapWork(ctx, workID, asOf, batchID)
	}, func(workID string, err error) {
		s.logger.Error("expiry sweep work failed", "job_id", batchID, "work_id", workID, "err", err)
	})
	s.logger.Info("expiry sweep complete", "job_id", report.BatchID, "reaped", len(report.Reaped), "failed", len(report.Failed), "unvisited", len(report.Unvisited))
	return report, nil
}

// newBatchID returns a compact job id shared by every log line and event of one sweep.
func newBatchID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sweepWorks runs fn for each work with bounded concurrency. Changed and unvisited works
// keep input order. A failing work is reported through onFailure and never stops the others.
func (s *Service) sweepWorks(ctx context.Context, works []string, fn func(context.Context, string) (bool, error), onFailure func(string, error)) (changed []string, failed map[string]error, unvisited []string) {
	failed = map[string]error{}
	done := make([]bool, len(works))
	visited := make([]bool, len(works))
	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(s.reaperConcurrency)
	for idx, workID := range works {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			ok, err := fn(ctx, workID)
			mu.Lock()
			defer mu.Unlock()
			visited[idx] = true
			if err != nil {
				failed[workID] = err
				onFailure(workID, err)
				return nil
			}
			done[idx] = ok
			return nil
		})
	}
	_ = group.Wait()

	for idx, workID := range works {
		switch {
		case done[idx]:
			changed = append(changed, workID)
		case !visited[idx]:
			unvisited = append(unvisited, workID)
		}
	}
	return changed, failed, unvisited
}

// reapWork discards the work's latest revision when it is an expired draft.
func (s *Service) reapWork(ctx context.Context, workID string, asOf time.Time, batchID string) (bool, error) {
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

	reaped := false
	err = s.mutateWork(ctx, workID, func(scope *workScope) error {
		history, err := scope.history(ctx)
		if err != nil {
			return err
		}
		latest, ok := history.Latest()
		if !ok || latest.Number <= 1 || latest.Class() != domain.RevisionClassDraft {
			return nil
		}
		invitations, err := scope.ListInvitations(ctx, InvitationFilter{
			SplitIDs: latest.SplitIDs(),
			Statuses: []domain.InvitationStatus{domain.InvitationStatusPending},
		})
		if err != nil {
			return err
		}
		expired := make([]string, 0)
		for _, invitation := range invitations {
			if invitation.Expired(s.expiration, asOf) {
				expired = append(expired, strconv.FormatInt(invitation.ID, 10))
			}
		}
		if len(expired) == 0 {
			return nil
		}

		if err := scope.deleteRevision(ctx, latest); err != nil {
			return err
		}
		for _, split := range latest.Splits {
			s.logger.Info("expired split deleted", "job_id", batchID, "work_id", workID, "split_id", split.ID, "revision", split.Revision, "status", split.Status, "rate", split.Rate.String())
		}
		reaped = true
		return scope.emit(ctx, domain.Event{
			Kind:     domain.EventSplitsExpired,
			Revision: latest.Number,
			SplitIDs: latest.SplitIDs(),
			Metadata: map[string]string{
				"batch_id":               batchID,
				"expired_invitation_ids": strings.Join(expired, ","),
				"as_of":                  asOf.UTC().Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return reaped, nil
}
