package audit

import (
	"context"
	"log/slog"

	"github.com/ppiankov/actiongate/internal/event"
)

// Drain records every decision:made and pipeline:assessed event from sub
// until ctx is done or the subscription closes. configHash is read per
// entry so reloads show up in the log. Write failures are logged and the
// drain keeps going.
func Drain(ctx context.Context, sub *event.Subscription, log *Log, configHash func() string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			var entry Entry
			switch {
			case e.Type == event.DecisionMade && e.Decision != nil:
				entry = FromDecision(*e.Decision, configHash())
			case e.Type == event.PipelineAssessed && e.Pipeline != nil:
				entry = FromPipeline(*e.Pipeline, configHash())
			default:
				continue
			}
			if err := log.Record(entry); err != nil {
				logger.Error("audit write failed", "decision", entry.DecisionID, "error", err)
			}
		}
	}
}
