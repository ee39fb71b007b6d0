// Package store holds the sinks that accepted log records are appended to.
package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// Sink is an append-only destination for accepted records.
type Sink interface {
	Append(ctx context.Context, rec model.Record) error
	Close() error
}

// Multi appends every record to each of its sinks in order. A failing sink
// does not stop the remaining ones; their errors are joined.
type Multi []Sink

// Compile-time check that Multi implements Sink.
var _ Sink = Multi(nil)

func (m Multi) Append(ctx context.Context, rec model.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
