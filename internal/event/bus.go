// Package event carries routing notifications to any number of
// subscribers over buffered channels.
//
// Publish never blocks the router. A subscriber that falls behind loses
// events; the losses are counted and logged.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/actiongate/internal/model"
)

// Type names an event.
type Type string

const (
	DecisionMade        Type = "decision:made"
	DecisionAutoExecute Type = "decision:auto_execute"
	DecisionQueued      Type = "decision:queued"
	DecisionEscalated   Type = "decision:escalated"
	DecisionRejected    Type = "decision:rejected"
	BoundaryViolation   Type = "boundary:violation"
	UsageFault          Type = "usage:fault"
	PipelineAssessed    Type = "pipeline:assessed"
)

// Types lists every event type the router emits.
var Types = []Type{
	DecisionMade, DecisionAutoExecute, DecisionQueued, DecisionEscalated,
	DecisionRejected, BoundaryViolation, UsageFault, PipelineAssessed,
}

// Known reports whether t is one of Types.
func Known(t Type) bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// ForOutcome returns the outcome-specific event type.
func ForOutcome(o model.Outcome) Type {
	switch o {
	case model.AutoExecute:
		return DecisionAutoExecute
	case model.QueueApproval:
		return DecisionQueued
	case model.Escalate:
		return DecisionEscalated
	default:
		return DecisionRejected
	}
}

// Event is one notification. Exactly one payload field is set for each
// type: Decision for decision:* and boundary:violation and usage:fault,
// Pipeline for pipeline:assessed. Violations is set for boundary:violation.
type Event struct {
	Type       Type                    `json:"type"`
	Timestamp  time.Time               `json:"timestamp"`
	Decision   *model.Decision         `json:"decision,omitempty"`
	Pipeline   *model.PipelineDecision `json:"pipeline,omitempty"`
	Violations []model.Violation       `json:"violations,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// DefaultBuffer is the subscription buffer used when a caller passes <= 0.
const DefaultBuffer = 64

// Subscription receives events until closed.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	bus    *Bus
	once   sync.Once
	filter map[Type]bool
}

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

func (s *Subscription) wants(t Type) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewBus creates an empty bus. A nil logger discards.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{subs: make(map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers a subscriber with the given buffer. When types are
// given, only those event types are delivered.
func (b *Bus) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	if len(types) > 0 {
		s.filter = make(map[Type]bool, len(types))
		for _, t := range types {
			s.filter[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event dropped: subscriber full", "type", e.Type, "dropped_total", n)
		}
	}
}

// Dropped returns how many deliveries were lost to full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
