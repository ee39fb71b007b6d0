package presence

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

var base = time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)

func newTestTracker(now *time.Time) *Tracker {
	tr := New()
	tr.now = func() time.Time { return *now }
	return tr
}

func rec(id, agent, content string, at time.Time) model.Record {
	return model.NewRecord(id, 1, agent, content, at)
}

func TestTrack_NewAgent(t *testing.T) {
	now := base
	tr := newTestTracker(&now)

	tr.Track(rec("lg-1", "Scout", "hello", base))

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	e := roster[0]
	if e.Agent != "Scout" {
		t.Errorf("expected agent Scout, got %q", e.Agent)
	}
	if e.LastRecordID != "lg-1" {
		t.Errorf("expected last record lg-1, got %q", e.LastRecordID)
	}
	if e.RecordCount != 1 {
		t.Errorf("expected count 1, got %d", e.RecordCount)
	}
	if !e.FirstSeen.Equal(base) || !e.LastSeen.Equal(base) {
		t.Errorf("unexpected timestamps: first=%v last=%v", e.FirstSeen, e.LastSeen)
	}
	if e.LastPreview != "hello" {
		t.Errorf("expected preview %q, got %q", "hello", e.LastPreview)
	}
}

func TestTrack_UpdatesExistingAgent(t *testing.T) {
	now := base.Add(time.Minute)
	tr := newTestTracker(&now)

	tr.Track(rec("lg-1", "Scout", "one", base))
	tr.Track(rec("lg-2", "Scout", "two", base.Add(30*time.Second)))

	e := tr.Roster(0)[0]
	if e.RecordCount != 2 {
		t.Errorf("expected count 2, got %d", e.RecordCount)
	}
	if e.LastRecordID != "lg-2" {
		t.Errorf("expected last record lg-2, got %q", e.LastRecordID)
	}
	if !e.FirstSeen.Equal(base) {
		t.Errorf("first seen changed to %v", e.FirstSeen)
	}
	if e.IdleSecs != 30 {
		t.Errorf("expected 30 idle secs, got %v", e.IdleSecs)
	}
}

func TestTrack_IgnoresEmptyAgent(t *testing.T) {
	tr := New()
	tr.Track(rec("lg-1", "", "orphan", base))
	if got := len(tr.Roster(0)); got != 0 {
		t.Fatalf("expected empty roster, got %d entries", got)
	}
}

func TestTrack_LongContentIsTruncated(t *testing.T) {
	tr := New()
	tr.Track(rec("lg-1", "Scout", strings.Repeat("é", 200), time.Now()))

	p := tr.Roster(0)[0].LastPreview
	if got := len([]rune(p)); got != previewLen+1 {
		t.Fatalf("expected %d runes, got %d", previewLen+1, got)
	}
	if !strings.HasSuffix(p, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", p)
	}
}

func TestRoster_SortedByLastSeenAndFiltered(t *testing.T) {
	now := base.Add(10 * time.Minute)
	tr := newTestTracker(&now)

	tr.Track(rec("lg-1", "Old", "x", base))
	tr.Track(rec("lg-2", "Mid", "x", base.Add(8*time.Minute)))
	tr.Track(rec("lg-3", "New", "x", base.Add(9*time.Minute)))

	all := tr.Roster(0)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Agent != "New" || all[1].Agent != "Mid" || all[2].Agent != "Old" {
		t.Fatalf("unexpected order: %s, %s, %s", all[0].Agent, all[1].Agent, all[2].Agent)
	}

	fresh := tr.Roster(5 * time.Minute)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh entries, got %d", len(fresh))
	}
	for _, e := range fresh {
		if e.Agent == "Old" {
			t.Fatal("stale agent should be filtered out")
		}
	}
}

func TestSweep_MarksIdleThenEvicts(t *testing.T) {
	now := base
	tr := newTestTracker(&now)

	var idled []string
	cfg := (&ReaperConfig{
		IdleAfter:  5 * time.Minute,
		EvictAfter: 10 * time.Minute,
		OnIdle:     func(agent string, _ time.Time) { idled = append(idled, agent) },
	}).withDefaults()

	tr.Track(rec("lg-1", "Scout", "x", base))
	tr.Track(rec("lg-2", "Ranger", "x", base.Add(4*time.Minute)))

	now = base.Add(6 * time.Minute)
	tr.sweep(cfg)

	if len(idled) != 1 || idled[0] != "Scout" {
		t.Fatalf("expected only Scout idled, got %v", idled)
	}
	roster := tr.Roster(0)
	if len(roster) != 2 {
		t.Fatalf("idle agents stay on the roster, got %d entries", len(roster))
	}
	for _, e := range roster {
		if e.Agent == "Scout" && (!e.Idle || !e.IdleSince.Equal(now)) {
			t.Fatalf("Scout should be idle since %v: %+v", now, e)
		}
		if e.Agent == "Ranger" && e.Idle {
			t.Fatal("Ranger should still be active")
		}
	}

	// A second sweep does not re-report the same agent.
	tr.sweep(cfg)
	if len(idled) != 1 {
		t.Fatalf("OnIdle fired again: %v", idled)
	}

	now = base.Add(17 * time.Minute)
	tr.sweep(cfg)
	for _, e := range tr.Roster(0) {
		if e.Agent == "Scout" {
			t.Fatal("Scout should have been evicted")
		}
	}
}

func TestTrack_ReactivatesIdleAgent(t *testing.T) {
	now := base
	tr := newTestTracker(&now)
	cfg := (&ReaperConfig{IdleAfter: time.Minute}).withDefaults()

	tr.Track(rec("lg-1", "Scout", "x", base))
	now = base.Add(2 * time.Minute)
	tr.sweep(cfg)

	if !tr.Roster(0)[0].Idle {
		t.Fatal("expected Scout idle")
	}

	tr.Track(rec("lg-2", "Scout", "back", now))
	e := tr.Roster(0)[0]
	if e.Idle || !e.IdleSince.IsZero() {
		t.Fatalf("expected Scout active again: %+v", e)
	}
	if e.RecordCount != 2 {
		t.Fatalf("expected count 2, got %d", e.RecordCount)
	}
}

func TestReaperConfig_Defaults(t *testing.T) {
	var cfg *ReaperConfig
	c := cfg.withDefaults()
	if c.IdleAfter != 15*time.Minute || c.EvictAfter != 30*time.Minute || c.SweepInterval != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestStartReaper_Stop(t *testing.T) {
	tr := New()
	var mu sync.Mutex
	fired := make(chan string, 1)
	tr.Track(rec("lg-1", "Scout", "x", time.Now().Add(-time.Hour)))

	tr.StartReaper(&ReaperConfig{
		IdleAfter:     time.Minute,
		SweepInterval: 10 * time.Millisecond,
		OnIdle: func(agent string, _ time.Time) {
			mu.Lock()
			defer mu.Unlock()
			select {
			case fired <- agent:
			default:
			}
		},
	})

	select {
	case agent := <-fired:
		if agent != "Scout" {
			t.Fatalf("expected Scout, got %q", agent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never marked Scout idle")
	}

	tr.Stop()
	tr.Stop()
}
