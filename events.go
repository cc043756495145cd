package formz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// FormEvent is an application event raised against a control and relayed
// to every form listening on the bus.
type FormEvent struct {
	ID          uuid.UUID
	Control     Control
	ControlName string
	EventType   string
	Value       any
	At          time.Time
}

// EventBus relays FormEvents to subscribers in publish order. Every
// published event is also emitted as a FormEventPublished signal.
type EventBus struct {
	stream Stream[FormEvent]
	recent *ring[FormEvent]
	clock  clockz.Clock
}

// NewEventBus creates a bus that keeps no history.
func NewEventBus() *EventBus {
	return &EventBus{clock: clockz.RealClock}
}

// History keeps the last n events for Recent.
func (b *EventBus) History(n int) *EventBus {
	b.recent = newRing[FormEvent](n)
	return b
}

// Clock sets the clock used to timestamp events.
func (b *EventBus) Clock(c clockz.Clock) *EventBus {
	b.clock = c
	return b
}

// Emit publishes an event for c. The control name is resolved from c's
// parent; a nil control yields an empty name.
func (b *EventBus) Emit(ctx context.Context, c Control, eventType string, value any) FormEvent {
	ev := FormEvent{
		Control:   c,
		EventType: eventType,
		Value:     value,
	}
	if c != nil {
		ev.ControlName = ControlName(c)
	}
	return b.Publish(ctx, ev)
}

// Publish relays ev and returns it as delivered. A missing ID or timestamp
// is filled in.
func (b *EventBus) Publish(ctx context.Context, ev FormEvent) FormEvent {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = b.clock.Now()
	}
	b.recent.push(ev)

	capitan.Emit(ctx, FormEventPublished,
		KeyEventType.Field(ev.EventType),
		KeyControl.Field(ev.ControlName),
	)

	b.stream.Emit(ev)
	return ev
}

// Subscribe receives every event.
func (b *EventBus) Subscribe(fn func(FormEvent)) *Subscription {
	return b.stream.Subscribe(fn)
}

// SubscribeType receives events whose EventType is one of types.
func (b *EventBus) SubscribeType(fn func(FormEvent), types ...string) *Subscription {
	return b.stream.Subscribe(func(ev FormEvent) {
		for _, t := range types {
			if ev.EventType == t {
				fn(ev)
				return
			}
		}
	})
}

// Observed reports whether anything listens on the bus.
func (b *EventBus) Observed() bool {
	return b.stream.Observed()
}

// Recent returns the retained events, oldest first.
func (b *EventBus) Recent() []FormEvent {
	return b.recent.all()
}

// Close drops every subscriber and the retained history.
func (b *EventBus) Close() {
	b.stream.Clear()
	b.recent.clear()
}
