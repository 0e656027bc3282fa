package cli

import (
	"context"
	"errors"

	"github.com/ppiankov/actiongate/internal/alert"
	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/event"
)

var noAudit bool

// sinks are the bus consumers a command runs for its lifetime: the
// audit log drain, the approval queue and the alert dispatcher.
type sinks struct {
	subs []*event.Subscription
	done []chan error
	log  *audit.Log
}

// startSinks subscribes the audit drain (unless --no-audit or no path is
// configured) and any configured alert destinations to bus.
func startSinks(ctx context.Context, bus *event.Bus, cfg *config.Config, hash func() string) (*sinks, error) {
	s := &sinks{}
	if !noAudit && cfg.AuditLog != "" {
		log, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return nil, err
		}
		s.log = log
		sub := bus.Subscribe(event.DefaultBuffer, event.DecisionMade, event.PipelineAssessed)
		s.run(sub, func() error { return audit.Drain(ctx, sub, log, hash, logger) })
	}
	if cfg.ApprovalsDir != "" {
		store, err := approval.NewStore(cfg.ApprovalsDir)
		if err != nil {
			s.stop()
			return nil, err
		}
		sub := bus.Subscribe(event.DefaultBuffer, event.DecisionQueued, event.DecisionEscalated)
		s.run(sub, func() error { return store.Track(ctx, sub) })
	}
	if d := alert.NewDispatcher(cfg.Alerts, logger); d != nil {
		sub := bus.Subscribe(event.DefaultBuffer, d.Types()...)
		s.run(sub, func() error { return d.Run(ctx, sub) })
	}
	return s, nil
}

func (s *sinks) run(sub *event.Subscription, fn func() error) {
	done := make(chan error, 1)
	s.subs = append(s.subs, sub)
	s.done = append(s.done, done)
	go func() { done <- fn() }()
}

// stop closes the subscriptions, waits for each consumer to drain what
// it already received, then closes the audit log.
func (s *sinks) stop() error {
	for _, sub := range s.subs {
		sub.Close()
	}
	var errs []error
	for _, done := range s.done {
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	return errors.Join(errs...)
}
