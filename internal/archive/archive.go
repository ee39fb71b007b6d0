// Package archive periodically copies the append log file to off-host
// destinations (S3, a git repository).
package archive

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source produces the bytes to archive. store.FileSink implements it.
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Destination is an archive target (S3, git, etc.).
type Destination interface {
	// Write replaces the archived copy with data.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic archives to one or more destinations. A snapshot
// identical to the last one archived is not uploaded again.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	lastDigest [sha256.Size]byte
	archived   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that copies the source to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic archiving. It runs an initial archive immediately,
// then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current archive (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce archives the current snapshot to every destination. It returns
// the snapshot error, if any; destination failures are logged and do not
// stop the remaining destinations.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.source.Snapshot(ctx)
	if err != nil {
		s.logger.Error("archive snapshot failed", "err", err)
		return fmt.Errorf("archive snapshot: %w", err)
	}

	digest := sha256.Sum256(data)
	if s.archived && digest == s.lastDigest {
		s.logger.Debug("archive skipped, log unchanged", "bytes", len(data))
		return nil
	}

	failed := 0
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
		}
	}
	// Retry unchanged data next tick if any destination missed it.
	if failed == 0 {
		s.lastDigest = digest
		s.archived = true
	}

	s.logger.Info("archive completed", "destinations", len(s.destinations), "failed", failed, "bytes", len(data))
	return nil
}
