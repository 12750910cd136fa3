package main

import (
	"context"

	"github.com/hylla/splitledger/internal/app"
	"github.com/hylla/splitledger/internal/domain"
)

// loggingCanceller records rejected advance requests. The CLI has no advance service
// to call back into, so the cancellation is surfaced in the runtime log.
type loggingCanceller struct {
	logger app.Logger
}

// CancelAdvance logs the cancellation.
func (c loggingCanceller) CancelAdvance(_ context.Context, in app.AdvanceCancellation) error {
	c.logger.Warn("advance cancelled",
		"advance_id", in.AdvanceID,
		"holder_id", in.HolderID,
		"work_id", in.WorkID,
		"requested", joinIDs(in.Requested),
		"resolved", joinIDs(in.Resolved),
	)
	return nil
}

// loggingPublisher writes committed ledger events to the runtime log.
type loggingPublisher struct {
	logger app.Logger
}

// Publish logs each event at debug level.
func (p loggingPublisher) Publish(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		p.logger.Debug("ledger event",
			"work_id", ev.WorkID,
			"kind", ev.Kind,
			"actor_id", ev.ActorID,
			"revision", ev.Revision,
			"split_ids", joinIDs(ev.SplitIDs),
		)
	}
	return nil
}
