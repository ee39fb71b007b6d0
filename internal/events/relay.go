package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// Relay forwards records accepted by other instances into the local
// broadcast. Records carrying this instance's origin are skipped; they were
// already delivered locally when they were accepted.
type Relay struct {
	Origin  string
	Subject string
	Deliver func(model.Record)
	Logger  *slog.Logger
}

// Run subscribes to the relay subject and forwards records until ctx is
// cancelled or the subscription channel closes.
func (r *Relay) Run(ctx context.Context, sub Subscriber) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject := r.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	ch, cancel, err := sub.Subscribe(subject)
	if err != nil {
		return fmt.Errorf("relay: subscribe: %w", err)
	}
	defer cancel()

	logger.Info("relay: started", "subject", subject, "origin", r.Origin)

	for {
		select {
		case <-ctx.Done():
			logger.Info("relay: stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				logger.Info("relay: subscription channel closed")
				return nil
			}

			var evt LogRecorded
			if err := json.Unmarshal(raw, &evt); err != nil {
				logger.Warn("relay: bad event payload", "err", err)
				continue
			}
			if evt.Origin == r.Origin {
				continue
			}
			r.Deliver(evt.Record)
		}
	}
}
