// Package presence keeps a live roster of the agents that publish logs.
//
// The ingestion endpoint calls Track for every accepted record. A background
// reaper marks agents idle once they have been silent for IdleAfter and
// forgets them entirely EvictAfter later, so short-lived agents do not
// accumulate forever.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// previewLen caps the content excerpt kept per agent.
const previewLen = 80

// Entry is a snapshot of one agent's presence.
type Entry struct {
	Agent        string    `json:"agent"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastRecordID string    `json:"last_record_id"`
	LastPreview  string    `json:"last_preview,omitempty"`
	RecordCount  int64     `json:"record_count"`
	IdleSecs     float64   `json:"idle_secs"`
	Idle         bool      `json:"idle,omitempty"`
	IdleSince    time.Time `json:"idle_since,omitempty"`
}

// ReaperConfig configures the background idle-agent reaper.
type ReaperConfig struct {
	// IdleAfter is how long an agent may stay silent before it is marked idle.
	// Default: 15 minutes.
	IdleAfter time.Duration

	// EvictAfter is how long an agent stays on the roster once idle.
	// Default: 30 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans the roster.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnIdle is called, outside the lock, for each agent newly marked idle.
	OnIdle func(agent string, lastSeen time.Time)
}

func (c *ReaperConfig) withDefaults() ReaperConfig {
	out := ReaperConfig{}
	if c != nil {
		out = *c
	}
	if out.IdleAfter == 0 {
		out.IdleAfter = 15 * time.Minute
	}
	if out.EvictAfter == 0 {
		out.EvictAfter = 30 * time.Minute
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = 60 * time.Second
	}
	return out
}

// Tracker maintains an in-memory roster of publishing agents.
type Tracker struct {
	mu     sync.RWMutex
	agents map[string]*agentState
	now    func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type agentState struct {
	firstSeen    time.Time
	lastSeen     time.Time
	lastRecordID string
	lastPreview  string
	count        int64
	idle         bool
	idleSince    time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		agents: make(map[string]*agentState),
		now:    time.Now,
	}
}

// Track updates the roster entry for rec's agent.
func (t *Tracker) Track(rec model.Record) {
	if rec.Agent == "" {
		return
	}

	seen := rec.ReceivedAt
	if seen.IsZero() {
		seen = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.agents[rec.Agent]
	if !ok {
		st = &agentState{firstSeen: seen}
		t.agents[rec.Agent] = st
	}
	if st.idle {
		slog.Info("presence: agent active again", "agent", rec.Agent)
		st.idle = false
		st.idleSince = time.Time{}
	}
	st.lastSeen = seen
	st.lastRecordID = rec.ID
	st.lastPreview = preview(rec.Content)
	st.count++
}

// Roster returns all tracked agents, most recently active first. Agents
// silent for longer than staleAfter are left out; pass 0 to include all.
func (t *Tracker) Roster(staleAfter time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.agents))
	for agent, st := range t.agents {
		idle := now.Sub(st.lastSeen)
		if staleAfter > 0 && idle > staleAfter {
			continue
		}
		entries = append(entries, Entry{
			Agent:        agent,
			FirstSeen:    st.firstSeen,
			LastSeen:     st.lastSeen,
			LastRecordID: st.lastRecordID,
			LastPreview:  st.lastPreview,
			RecordCount:  st.count,
			IdleSecs:     idle.Seconds(),
			Idle:         st.idle,
			IdleSince:    st.idleSince,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].Agent < entries[j].Agent
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches the background reaper. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	c := cfg.withDefaults()

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(c)
	slog.Info("presence: reaper started",
		"idle_after", c.IdleAfter,
		"sweep_interval", c.SweepInterval)
}

// Stop shuts down the reaper goroutine. It is a no-op if none is running.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg ReaperConfig) {
	type idleAgent struct {
		name     string
		lastSeen time.Time
	}
	var newlyIdle []idleAgent

	now := t.now()
	t.mu.Lock()
	for agent, st := range t.agents {
		if st.idle {
			if now.Sub(st.idleSince) > cfg.EvictAfter {
				delete(t.agents, agent)
			}
			continue
		}
		if now.Sub(st.lastSeen) > cfg.IdleAfter {
			st.idle = true
			st.idleSince = now
			newlyIdle = append(newlyIdle, idleAgent{name: agent, lastSeen: st.lastSeen})
		}
	}
	t.mu.Unlock()

	for _, a := range newlyIdle {
		slog.Info("presence: agent idle", "agent", a.name, "last_seen", a.lastSeen)
		if cfg.OnIdle != nil {
			cfg.OnIdle(a.name, a.lastSeen)
		}
	}
}

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLen {
		return content
	}
	return string(r[:previewLen]) + "…"
}
