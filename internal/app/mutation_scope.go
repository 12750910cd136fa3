package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/splitledger/internal/domain"
)

// workScope is one open exclusive scope over a work's split set.
type workScope struct {
	WorkStore
	workID string
	now    time.Time
	events []domain.Event
}

// emit appends event to the outbox inside the scope.
func (w *workScope) emit(ctx context.Context, event domain.Event) error {
	event.WorkID = w.workID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = w.now
	}
	stored, err := w.AppendEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("append %s event: %w", event.Kind, err)
	}
	w.events = append(w.events, stored)
	return nil
}

// history loads the full revision history of the scoped work.
func (w *workScope) history(ctx context.Context) (domain.History, error) {
	splits, err := w.ListSplits(ctx, SplitFilter{})
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	return domain.NewHistory(splits), nil
}

// deleteRevision removes every split of rev together with its invitations.
func (w *workScope) deleteRevision(ctx context.Context, rev domain.Revision) error {
	if err := w.DeleteSplits(ctx, rev.SplitIDs()); err != nil {
		return fmt.Errorf("delete revision %d: %w", rev.Number, err)
	}
	return nil
}

// mutateWork runs fn in the work's exclusive scope, applies the integrity guard before
// commit, and publishes the recorded events once the scope has committed.
func (s *Service) mutateWork(ctx context.Context, workID string, fn func(*workScope) error) error {
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return domain.ErrInvalidID
	}
	var scope *workScope
	err := s.repo.WithinWork(ctx, workID, func(store WorkStore) error {
		scope = &workScope{WorkStore: store, workID: workID, now: s.clock().UTC()}
		if err := fn(scope); err != nil {
			return err
		}
		if !s.integrityGuard || len(scope.events) == 0 {
			return nil
		}
		splits, err := store.ListSplits(ctx, SplitFilter{})
		if err != nil {
			return fmt.Errorf("list splits for integrity guard: %w", err)
		}
		if violations := domain.CheckIntegrity(splits, domain.IntegrityOptions{}); len(violations) > 0 {
			return fmt.Errorf("%w: %w", ErrIntegrity, &domain.IntegrityError{Violations: violations})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			s.logger.Error("integrity guard rolled back work mutation", "work_id", workID, "err", err)
		}
		return err
	}
	s.publish(ctx, scope.events)
	return nil
}

// publish hands committed events to the configured publisher.
func (s *Service) publish(ctx context.Context, events []domain.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events); err != nil {
		// Events stay in the outbox, so a failed hand-off is only logged.
		s.logger.Warn("event publish failed", "work_id", events[0].WorkID, "count", len(events), "err", err)
	}
}
