// Package client provides the logbridge CLI's view of a running server: an
// HTTP/JSON implementation for the primary and ingestion ports, an SSE
// stream reader, and a gRPC health probe.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/presence"
)

// LogBridgeClient is the interface the CLI commands use to talk to a
// logbridge server.
type LogBridgeClient interface {
	// Send submits one log message to the ingestion port.
	Send(ctx context.Context, agent, content string) (*SendResult, error)

	// Stream delivers live records to fn until ctx is cancelled, the server
	// closes the stream, or fn returns an error. since > 0 replays buffered
	// records newer than that sequence number first.
	Stream(ctx context.Context, since uint64, fn func(model.Record) error) error

	// Queries
	Recent(ctx context.Context, limit int, source string) ([]model.Record, error)
	Agents(ctx context.Context, staleAfter time.Duration) ([]presence.Entry, error)
	Guide(ctx context.Context, city, date string) (*GuideResult, error)

	// Health
	Health(ctx context.Context) (*HealthStatus, error)

	// Lifecycle
	Close() error
}

// SendResult is the ingestion port's reply. Heartbeat is set when the
// server treated the submission as an empty heartbeat.
type SendResult struct {
	Status    string `json:"status,omitempty"`
	Heartbeat bool   `json:"-"`
}

// HealthStatus is the reply from GET /v1/health.
type HealthStatus struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

// GuideResult is the reply from POST /api/guide.
type GuideResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}
