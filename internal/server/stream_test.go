package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/hub"
	"github.com/alfredjeanlab/logbridge/internal/model"
)

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// openStream starts GET path against h in a goroutine. Cancel the returned
// func to disconnect; done closes when the handler has returned.
func openStream(h http.Handler, path string) (*httptest.ResponseRecorder, context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()
	return rec, cancel, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return")
	}
}

// dataFrames parses the "data: " payloads out of an SSE body.
func dataFrames(t *testing.T, body string) []model.Record {
	t.Helper()
	var recs []model.Record
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestStream_ReceivesIngestedRecord(t *testing.T) {
	env := newTestEnv(t)
	rec, cancel, done := openStream(env.http, "/api/stream")
	defer cancel()
	waitFor(t, "subscription", func() bool { return env.hub.Len() == 1 })

	resp := postLog(t, env.ingest, `{"agent":"Scout","content":"hello"}`)
	if got := strings.TrimSpace(resp.Body.String()); got != `{"status":"received"}` {
		t.Fatalf("unexpected ingest body %q", got)
	}

	// Give the writer loop time to drain the frame before disconnecting.
	waitFor(t, "frame written", func() bool { return len(env.srv.history.Recent(0)) == 1 })
	time.Sleep(50 * time.Millisecond)
	cancel()
	waitDone(t, done)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if c := rec.Header().Get("Connection"); c != "keep-alive" {
		t.Errorf("Connection = %q", c)
	}
	if xb := rec.Header().Get("X-Accel-Buffering"); xb != "no" {
		t.Errorf("X-Accel-Buffering = %q", xb)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.HasSuffix(body, "}\n\n") {
		t.Fatalf("expected one data frame, got %q", body)
	}
	if strings.Count(body, "data: ") != 1 {
		t.Fatalf("expected exactly one frame, got %q", body)
	}
	if !strings.Contains(body, `"Scout"`) || !strings.Contains(body, `"hello"`) {
		t.Fatalf("frame missing agent or content: %q", body)
	}
	frames := dataFrames(t, body)
	if frames[0].Text != model.FormatText("Scout", "hello", testNow) {
		t.Fatalf("frame text = %q", frames[0].Text)
	}
}

func TestStream_HeartbeatAndFaultSendNothing(t *testing.T) {
	env := newTestEnv(t)
	rec, cancel, done := openStream(env.http, "/api/stream")
	waitFor(t, "subscription", func() bool { return env.hub.Len() == 1 })

	postLog(t, env.ingest, "")
	postLog(t, env.ingest, "not-json")

	time.Sleep(50 * time.Millisecond)
	cancel()
	waitDone(t, done)

	if body := rec.Body.String(); strings.Contains(body, "data:") {
		t.Fatalf("expected no frames, got %q", body)
	}
}

func TestStream_DisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	_, cancel, done := openStream(env.http, "/api/stream")
	waitFor(t, "subscription", func() bool { return env.hub.Len() == 1 })

	cancel()
	waitDone(t, done)

	if n := env.hub.Len(); n != 0 {
		t.Fatalf("expected empty registry after disconnect, got %d", n)
	}
	// A later publish must not reach the closed connection or panic.
	env.hub.Publish(model.NewRecord("lg-late", 1, "Scout", "late", testNow))
}

func TestStream_NilHubClosesImmediately(t *testing.T) {
	srv := New(Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	finished := make(chan struct{})
	go func() {
		srv.NewHTTPHandler().ServeHTTP(rec, req)
		close(finished)
	}()
	waitDone(t, finished)

	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

// failingWriter accepts headers but fails every body write.
type failingWriter struct {
	mu     sync.Mutex
	header http.Header
	writes int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) WriteHeader(int)     {}
func (f *failingWriter) Flush()              {}

func (f *failingWriter) Write([]byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return 0, errors.New("broken pipe")
}

func TestStream_WriteFailureUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	w := &failingWriter{header: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.http.ServeHTTP(w, req)
	}()
	waitFor(t, "subscription", func() bool { return env.hub.Len() == 1 })

	other := countDeliveries(env.hub)
	env.hub.Publish(model.NewRecord("lg-1", 1, "Scout", "hello", testNow))
	waitDone(t, done)

	if n := env.hub.Len(); n != 1 {
		t.Fatalf("expected only the counting subscriber left, got %d", n)
	}
	if other() != 1 {
		t.Fatalf("other subscriber got %d deliveries, want 1", other())
	}

	env.hub.Publish(model.NewRecord("lg-2", 2, "Scout", "again", testNow))
	w.mu.Lock()
	writes := w.writes
	w.mu.Unlock()
	if writes != 1 {
		t.Fatalf("expected a single write attempt, got %d", writes)
	}
}

func TestStream_ReplaySince(t *testing.T) {
	env := newTestEnv(t)
	for _, agent := range []string{"A", "B", "C"} {
		postLog(t, env.ingest, `{"agent":"`+agent+`"}`)
	}

	rec, cancel, done := openStream(env.http, "/api/stream?since=1")
	waitFor(t, "subscription", func() bool { return env.hub.Len() == 1 })
	postLog(t, env.ingest, `{"agent":"D"}`)
	time.Sleep(50 * time.Millisecond)
	cancel()
	waitDone(t, done)

	frames := dataFrames(t, rec.Body.String())
	var agents []string
	for _, f := range frames {
		agents = append(agents, f.Agent)
	}
	if got := strings.Join(agents, ","); got != "B,C,D" {
		t.Fatalf("frames = %s, want B,C,D", got)
	}
}

func TestStream_InvalidSince(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.http.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream?since=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.hub.Len() != 0 {
		t.Fatal("rejected stream must not subscribe")
	}
}

func TestStream_Keepalive(t *testing.T) {
	h := hub.New()
	srv := New(Options{Hub: h, Keepalive: 10 * time.Millisecond})
	rec, cancel, done := openStream(srv.NewHTTPHandler(), "/api/stream")
	waitFor(t, "subscription", func() bool { return h.Len() == 1 })

	time.Sleep(60 * time.Millisecond)
	cancel()
	waitDone(t, done)

	body := rec.Body.String()
	if !strings.Contains(body, ":keepalive\n\n") {
		t.Fatalf("expected keepalive comment, got %q", body)
	}
	if strings.Contains(body, "data:") {
		t.Fatalf("keepalive must not be a data frame: %q", body)
	}
}

func TestStreamConn_CloseIsIdempotent(t *testing.T) {
	c := newStreamConn(newTestEnv(t).srv.logger)
	calls := 0
	c.attach(func() { calls++ })

	c.close("first", nil)
	c.close("second", errors.New("late"))
	if calls != 1 {
		t.Fatalf("unsubscribe called %d times, want 1", calls)
	}
	if !c.isClosed() {
		t.Fatal("expected closed")
	}

	c.deliver(model.NewRecord("lg-1", 1, "Scout", "x", testNow))
	if len(c.frames) != 0 {
		t.Fatal("closed connection must not queue frames")
	}
}

func TestStreamConn_AttachAfterClose(t *testing.T) {
	c := newStreamConn(newTestEnv(t).srv.logger)
	c.close("early", nil)

	calls := 0
	c.attach(func() { calls++ })
	if calls != 1 {
		t.Fatalf("expected immediate unsubscribe, got %d calls", calls)
	}
}

func TestStreamConn_FullBufferDrops(t *testing.T) {
	c := newStreamConn(newTestEnv(t).srv.logger)
	c.attach(func() {})
	for i := range streamBuffer + 10 {
		c.deliver(model.NewRecord("lg", uint64(i+1), "Scout", "x", testNow))
	}
	if len(c.frames) != streamBuffer {
		t.Fatalf("expected %d queued frames, got %d", streamBuffer, len(c.frames))
	}
	if c.isClosed() {
		t.Fatal("a slow viewer is not closed, only skipped")
	}
}

func TestEncodeFrame(t *testing.T) {
	rec := model.NewRecord("lg-1", 7, "Scout", "a\nb", testNow)
	data, err := encodeFrame(rec)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	s := string(data)
	if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") {
		t.Fatalf("bad framing %q", s)
	}
	if strings.Count(s, "\n") != 2 {
		t.Fatalf("payload newlines must be escaped: %q", s)
	}
}

func TestEncodeFrame_HTMLUnescaped(t *testing.T) {
	content := strings.Repeat("<div>&amp;</div>", 1000)
	rec := model.NewRecord("lg-2", 8, "Scout", content, testNow)
	data, err := encodeFrame(rec)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	s := string(data)
	if strings.Contains(s, `\u003c`) || strings.Contains(s, `\u0026`) {
		t.Fatal("HTML characters were escaped")
	}
	// content appears once in "content" and once inside "text".
	if got := strings.Count(s, content); got != 2 {
		t.Fatalf("expected content verbatim twice, found %d", got)
	}

	var decoded model.Record
	payload := strings.TrimSuffix(strings.TrimPrefix(s, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Content != content || decoded.Text != rec.Text {
		t.Fatal("decoded record differs from original")
	}
}
