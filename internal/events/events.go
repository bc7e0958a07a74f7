// Package events carries domain events out of the limiter and conversation
// services. A Bus fans events out to in-process handlers and to any number
// of sinks, such as the NATS publisher. Publishing never fails the caller's
// operation; sink errors are logged.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names.
const (
	FloodRecorded = "flood.recorded"
	UserBlocked   = "user.blocked"
	StageChanged  = "stage.changed"
	SlotsMerged   = "slots.merged"
)

// Event is one domain occurrence. Data must be JSON-marshalable.
type Event struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler receives events from a Bus.
type Handler func(ctx context.Context, ev Event)

// Bus is a synchronous in-process fan-out. The zero value is not usable;
// use NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	sinks    []Publisher
}

// NewBus returns a Bus forwarding to sinks.
func NewBus(sinks ...Publisher) *Bus {
	b := &Bus{handlers: make(map[string][]Handler)}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Subscribe registers h for events named name. "*" receives every event.
func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], h)
	b.mu.Unlock()
}

// AddSink forwards every later event to p.
func (b *Bus) AddSink(p Publisher) {
	if p == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, p)
	b.mu.Unlock()
}

// Publish delivers ev to matching handlers, then to every sink. It always
// returns nil.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	hs := append(append([]Handler(nil), b.handlers[ev.Name]...), b.handlers["*"]...)
	sinks := append([]Publisher(nil), b.sinks...)
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, ev)
	}
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Msg("event sink failed")
		}
	}
	return nil
}
