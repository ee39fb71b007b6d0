package hub

import (
	"sync"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// DefaultHistorySize is the number of recent records kept when no size is
// configured.
const DefaultHistorySize = 1000

// History is a fixed-size ring of recently accepted records, used to serve
// the recent-logs listing and stream replay after reconnection.
type History struct {
	mu   sync.RWMutex
	ring []model.Record
	pos  int // next write position (wraps around)
	n    int // number of valid entries
}

// NewHistory returns a History holding at most size records.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{ring: make([]model.Record, size)}
}

// Add stores rec, evicting the oldest record when full.
func (h *History) Add(rec model.Record) {
	h.mu.Lock()
	h.ring[h.pos] = rec
	h.pos = (h.pos + 1) % len(h.ring)
	if h.n < len(h.ring) {
		h.n++
	}
	h.mu.Unlock()
}

// Since returns buffered records with Seq > seq, oldest first.
func (h *History) Since(seq uint64) []model.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []model.Record
	h.walk(func(rec model.Record) {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	})
	return out
}

// Recent returns up to limit of the newest records, oldest first.
// A limit <= 0 returns everything buffered.
func (h *History) Recent(limit int) []model.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.Record, 0, h.n)
	h.walk(func(rec model.Record) { out = append(out, rec) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// walk visits valid entries from oldest to newest. Caller holds mu.
func (h *History) walk(fn func(model.Record)) {
	start := h.pos - h.n
	if start < 0 {
		start += len(h.ring)
	}
	for i := range h.n {
		fn(h.ring[(start+i)%len(h.ring)])
	}
}
