package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// streamBuffer is how many encoded frames may queue for one slow viewer
// before further records are dropped for that viewer.
const streamBuffer = 64

// keepaliveFrame is an SSE comment; viewers ignore it.
const keepaliveFrame = ":keepalive\n\n"

// frame is one encoded record waiting to be written.
type frame struct {
	seq  uint64
	data []byte
}

// encodeFrame renders rec as "data: <json>\n\n". HTML characters are left
// unescaped so markup-heavy content does not grow sixfold on the wire.
func encodeFrame(rec model.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2*len(rec.Content) + len(rec.Text) + 128)
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	// Encode terminates the value with one newline; the frame needs two.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// streamConn is the Open to Closed state of one viewer connection. Both the
// Hub's delivery callback and the handler's write loop may close it; the
// first close wins and unsubscribes exactly once.
type streamConn struct {
	mu          sync.Mutex
	closed      bool
	unsubscribe func()
	frames      chan frame
	done        chan struct{}
	logger      *slog.Logger
}

func newStreamConn(logger *slog.Logger) *streamConn {
	return &streamConn{
		frames: make(chan frame, streamBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// attach stores the Hub's unsubscribe function. If the connection already
// closed while subscribing, it unsubscribes immediately.
func (c *streamConn) attach(unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
}

// deliver is the Hub callback. It never blocks: a full queue drops the
// record for this viewer only.
func (c *streamConn) deliver(rec model.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	data, err := encodeFrame(rec)
	if err != nil {
		c.closeLocked("encode", err)
		return
	}

	select {
	case c.frames <- frame{seq: rec.Seq, data: data}:
	default:
		c.logger.Warn("stream: viewer too slow, dropping record", "record_id", rec.ID, "seq", rec.Seq)
	}
}

// close moves the connection to Closed. Later calls are no-ops.
func (c *streamConn) close(reason string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(reason, err)
}

func (c *streamConn) closeLocked(reason string, err error) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if err != nil {
		c.logger.Info("stream: closed", "reason", reason, "err", err)
	} else {
		c.logger.Debug("stream: closed", "reason", reason)
	}
}

// isClosed reports whether the connection has left the Open state.
func (c *streamConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// streamWriter writes one frame and flushes it to the peer.
type streamWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (sw streamWriter) send(data []byte) error {
	if _, err := sw.w.Write(data); err != nil {
		return err
	}
	return sw.rc.Flush()
}

// handleStream handles GET /api/stream. Each record published after the
// connection opens arrives as one "data: <json>\n\n" frame. An optional
// ?since=<seq> first replays buffered records newer than seq.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		return
	}

	var (
		since    uint64
		doReplay bool
	)
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a sequence number")
			return
		}
		since, doReplay = n, true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := streamWriter{w: w, rc: http.NewResponseController(w)}
	if err := out.rc.Flush(); err != nil {
		s.logger.Warn("stream: response does not support flushing", "err", err)
		return
	}

	conn := newStreamConn(s.logger)
	conn.attach(s.hub.Subscribe(conn.deliver))
	defer conn.close("handler exit", nil)

	s.logger.Debug("stream: opened", "remote", r.RemoteAddr, "subscribers", s.hub.Len())

	// Subscribing before the replay means no record falls between the two;
	// live frames for replayed records are skipped.
	var replayed map[uint64]struct{}
	if doReplay {
		replayed = make(map[uint64]struct{})
		for _, rec := range s.history.Since(since) {
			data, err := encodeFrame(rec)
			if err != nil {
				conn.close("encode", err)
				return
			}
			if err := out.send(data); err != nil {
				conn.close("write", err)
				return
			}
			replayed[rec.Seq] = struct{}{}
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.close("peer gone", nil)
			return
		case <-conn.done:
			return
		case f := <-conn.frames:
			if _, dup := replayed[f.seq]; dup {
				delete(replayed, f.seq)
				continue
			}
			if err := out.send(f.data); err != nil {
				conn.close("write", err)
				return
			}
		case <-keepalive.C:
			if err := out.send([]byte(keepaliveFrame)); err != nil {
				conn.close("keepalive", err)
				return
			}
		}
	}
}
