package alert

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/ppiankov/actiongate/internal/event"
)

// Dispatcher fans bus events out to matching webhook destinations.
type Dispatcher struct {
	configs []Config
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Types returns the union of event types the destinations want, for
// use as a subscription filter.
func (d *Dispatcher) Types() []event.Type {
	var types []event.Type
	for _, cfg := range d.configs {
		for _, e := range cfg.Events {
			if t := event.Type(e); !slices.Contains(types, t) {
				types = append(types, t)
			}
		}
	}
	return types
}

// Dispatch sends e to every destination whose Events list names its
// type. Sends run in the background; Wait blocks until they finish.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.Event) {
	ev := NewAlertEvent(e)
	for _, cfg := range d.configs {
		if !slices.Contains(cfg.Events, string(e.Type)) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(ctx, cfg, ev); err != nil {
				d.logger.Warn("alert delivery failed", "url", cfg.URL, "event", ev.Event, "decision", ev.DecisionID, "error", err)
			}
		}(cfg)
	}
}

// Run dispatches events from sub until ctx is done or the subscription
// closes, then waits for in-flight sends.
func (d *Dispatcher) Run(ctx context.Context, sub *event.Subscription) error {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, e)
		}
	}
}

// Wait blocks until all in-flight sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
