package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// ErrClosed is returned by FileSink after Close.
var ErrClosed = errors.New("store: sink closed")

// FileSink appends each record's formatted text to a plain-text file.
// Every Append is a single Write under the sink's lock, so concurrent
// appends never interleave.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

var _ Sink = (*FileSink)(nil)

// OpenFile creates dir if needed and opens dir/name for appending.
func OpenFile(dir, name string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileSink{path: path, file: f}, nil
}

// Path returns the file being appended to.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Append(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	if _, err := s.file.WriteString(rec.Text); err != nil {
		return fmt.Errorf("append %s: %w", rec.ID, err)
	}
	return nil
}

// Snapshot returns the current contents of the log file. Appends are held
// off while it reads so the snapshot never ends in a partial block.
func (s *FileSink) Snapshot(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return data, nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
