// Package hub is the in-process broadcast point between the ingestion
// endpoint and the streaming endpoint.
//
// A Hub is constructed once at startup and handed to both endpoints. It keeps
// a registry of delivery callbacks; Publish invokes each of them
// synchronously. The Hub applies no buffering or backpressure of its own:
// if a callback blocks, Publish blocks. Callbacks that need to drop slow
// peers or tear down broken connections do so themselves.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// DeliverFunc receives one published record.
type DeliverFunc func(rec model.Record)

// Hub fans published records out to registered subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

// subscriber is one registry entry. live is cleared on unsubscribe so that a
// publish already iterating a snapshot skips it.
type subscriber struct {
	deliver DeliverFunc
	live    atomic.Bool
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers fn and returns the function that removes it again.
// The returned function is safe to call any number of times, from any
// goroutine, including from inside fn.
func (h *Hub) Subscribe(fn DeliverFunc) (unsubscribe func()) {
	s := &subscriber{deliver: fn}
	s.live.Store(true)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.live.Store(false)
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers rec to every subscriber registered when the call starts.
// It returns once every callback has returned.
func (h *Hub) Publish(rec model.Record) {
	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		if !s.live.Load() {
			continue
		}
		s.deliver(rec)
	}
}

// Len reports the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
