package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

func testRecord(agent, content string) model.Record {
	return model.NewRecord("lg-test", 1, agent, content, time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC))
}

func TestOpenFile_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	sink, err := OpenFile(dir, "agent-logs.txt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer sink.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected log dir to exist: %v", err)
	}
	if sink.Path() != filepath.Join(dir, "agent-logs.txt") {
		t.Fatalf("Path() = %q", sink.Path())
	}
}

func TestFileSink_AppendWritesFormattedText(t *testing.T) {
	dir := t.TempDir()
	sink, err := OpenFile(dir, "agent-logs.txt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer sink.Close()

	first := testRecord("Scout", "hello")
	second := testRecord("Ranger", "world")
	for _, rec := range []model.Record{first, second} {
		if err := sink.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "agent-logs.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(data), first.Text+second.Text; got != want {
		t.Fatalf("file contents =\n%q\nwant\n%q", got, want)
	}
}

func TestFileSink_AppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-logs.txt")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink, err := OpenFile(dir, "agent-logs.txt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	rec := testRecord("Scout", "hello")
	if err := sink.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	sink.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "previous run\n") {
		t.Fatalf("existing contents were not preserved: %q", data)
	}
	if !strings.HasSuffix(string(data), rec.Text) {
		t.Fatalf("record not appended: %q", data)
	}
}

func TestFileSink_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	dir := t.TempDir()
	sink, err := OpenFile(dir, "agent-logs.txt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer sink.Close()

	content := strings.Repeat("x", 4096)
	rec := testRecord("Scout", content)

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Append(context.Background(), rec); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := sink.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got, want := string(data), strings.Repeat(rec.Text, writers); got != want {
		t.Fatalf("file is not %d whole blocks (len %d, want %d)", writers, len(got), len(want))
	}
}

func TestFileSink_AppendAfterClose(t *testing.T) {
	sink, err := OpenFile(t.TempDir(), "agent-logs.txt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sink.Append(context.Background(), testRecord("Scout", "late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

type recordingSink struct {
	appended []model.Record
	err      error
	closed   bool
}

func (s *recordingSink) Append(_ context.Context, rec model.Record) error {
	s.appended = append(s.appended, rec)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.err
}

func TestMulti_AppendsToAllSinksDespiteFailure(t *testing.T) {
	failing := &recordingSink{err: errors.New("disk full")}
	healthy := &recordingSink{}
	m := Multi{failing, healthy}

	err := m.Append(context.Background(), testRecord("Scout", "hello"))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined error containing %q, got %v", "disk full", err)
	}
	if len(healthy.appended) != 1 {
		t.Fatalf("healthy sink got %d records, want 1", len(healthy.appended))
	}

	if err := m.Close(); err == nil {
		t.Fatal("expected close error from failing sink")
	}
	if !failing.closed || !healthy.closed {
		t.Fatal("expected every sink to be closed")
	}
}
