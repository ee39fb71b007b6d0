// Package events carries accepted log records over an external event bus so
// that several logbridge instances can share one live stream.
package events

import (
	"context"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// DefaultSubject is the bus subject records are published on when none is
// configured.
const DefaultSubject = "logbridge.logs"

// LogRecorded is published once per accepted record. Origin identifies the
// instance that accepted it so relays can skip their own records.
type LogRecorded struct {
	Origin string       `json:"origin"`
	Record model.Record `json:"record"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
