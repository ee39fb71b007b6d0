// Package server exposes the ingestion endpoint, the live stream and the
// query API over HTTP, plus a gRPC health service.
package server

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/events"
	"github.com/alfredjeanlab/logbridge/internal/hub"
	"github.com/alfredjeanlab/logbridge/internal/idgen"
	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/presence"
	"github.com/alfredjeanlab/logbridge/internal/proxy"
	"github.com/alfredjeanlab/logbridge/internal/store"
)

// DefaultKeepaliveInterval is how often idle streams get a comment line.
const DefaultKeepaliveInterval = 15 * time.Second

// RecentLister reads records back from a persistent mirror.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]model.Record, error)
}

// Options configures a Server. Zero values select defaults; only Hub is
// needed for the stream endpoint to serve data.
type Options struct {
	Hub       *hub.Hub
	History   *hub.History
	Sink      store.Sink
	Publisher events.Publisher
	Subject   string // bus subject for LogRecorded events
	Origin    string // this instance's ID on the bus
	Presence  *presence.Tracker
	Proxy     *proxy.Forwarder
	Mirror    RecentLister // optional, serves /v1/logs/recent?source=db
	Console   io.Writer    // receives each record's text; nil = discard
	Logger    *slog.Logger
	Keepalive time.Duration
}

// Server ties the ingestion and streaming endpoints to one Hub.
type Server struct {
	hub       *hub.Hub
	history   *hub.History
	sink      store.Sink
	publisher events.Publisher
	subject   string
	origin    string
	Presence  *presence.Tracker
	proxy     *proxy.Forwarder
	mirror    RecentLister
	console   io.Writer
	logger    *slog.Logger
	keepalive time.Duration

	seq atomic.Uint64
	now func() time.Time
}

// New returns a Server wired to the collaborators in opts.
func New(opts Options) *Server {
	s := &Server{
		hub:       opts.Hub,
		history:   opts.History,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		subject:   opts.Subject,
		origin:    opts.Origin,
		Presence:  opts.Presence,
		proxy:     opts.Proxy,
		mirror:    opts.Mirror,
		console:   opts.Console,
		logger:    opts.Logger,
		keepalive: opts.Keepalive,
		now:       time.Now,
	}
	if s.history == nil {
		s.history = hub.NewHistory(hub.DefaultHistorySize)
	}
	if s.publisher == nil {
		s.publisher = &events.NoopPublisher{}
	}
	if s.subject == "" {
		s.subject = events.DefaultSubject
	}
	if s.Presence == nil {
		s.Presence = presence.New()
	}
	if s.proxy == nil {
		s.proxy = proxy.New("", nil)
	}
	if s.console == nil {
		s.console = io.Discard
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.keepalive <= 0 {
		s.keepalive = DefaultKeepaliveInterval
	}
	return s
}

// Hub returns the broadcast hub, which may be nil.
func (s *Server) Hub() *hub.Hub { return s.hub }

// newRecord stamps a submission with an ID, the next sequence number and the
// current time.
func (s *Server) newRecord(sub model.Submission) (model.Record, error) {
	id, err := idgen.RecordID()
	if err != nil {
		return model.Record{}, err
	}
	return model.NewRecord(id, s.seq.Add(1), sub.Agent, sub.Content, s.now()), nil
}

// accept runs an accepted record through the pipeline: console, sink, then
// local broadcast, then the bus. Sink and bus failures are logged only.
func (s *Server) accept(ctx context.Context, rec model.Record) {
	if _, err := io.WriteString(s.console, rec.Text); err != nil {
		s.logger.Warn("console write failed", "record_id", rec.ID, "err", err)
	}

	if s.sink != nil {
		if err := s.sink.Append(ctx, rec); err != nil {
			s.logger.Error("append failed", "record_id", rec.ID, "agent", rec.Agent, "err", err)
		}
	}

	s.broadcast(rec)

	if err := s.publisher.Publish(ctx, s.subject, events.LogRecorded{Origin: s.origin, Record: rec}); err != nil {
		s.logger.Warn("failed to publish record", "record_id", rec.ID, "subject", s.subject, "err", err)
	}
}

// broadcast records rec in history and presence, then hands it to the Hub.
func (s *Server) broadcast(rec model.Record) {
	s.history.Add(rec)
	s.Presence.Track(rec)
	if s.hub != nil {
		s.hub.Publish(rec)
	}
}

// DeliverRemote broadcasts a record accepted by another instance. It gets
// a local sequence number so ?since replay stays monotonic here; it is not
// persisted or republished.
func (s *Server) DeliverRemote(rec model.Record) {
	local := model.NewRecord(rec.ID, s.seq.Add(1), rec.Agent, rec.Content, rec.ReceivedAt)
	s.broadcast(local)
}
