// Package statebus fans state changes out to in-process subscribers
// such as websocket clients and the MQTT mirror.
package statebus

import (
	"context"
	"sync"
	"time"

	"github.com/ammawel/cul_bridge/pkg/objects"
)

type subscriber struct {
	ch chan Change
}

type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns a receive channel and a function that unregisters
// it and closes the channel.
func (b *Bus) Subscribe() (<-chan Change, func()) {
	s := &subscriber{ch: make(chan Change, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish never blocks; a subscriber with a full buffer misses c.
func (b *Bus) Publish(c Change) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- c:
		default:
		}
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Store wraps an objects.Store and publishes every successful SetState.
type Store struct {
	objects.Store
	bus *Bus
}

func NewStore(inner objects.Store, bus *Bus) *Store {
	return &Store{Store: inner, bus: bus}
}

func (s *Store) SetState(ctx context.Context, id string, val any, ack bool) error {
	if err := s.Store.SetState(ctx, id, val, ack); err != nil {
		return err
	}
	if objects.IsNaN(val) {
		val = nil
	}
	s.bus.Publish(Change{ID: id, Val: val, Ack: ack})
	return nil
}

func (s *Store) Bus() *Bus {
	return s.bus
}
