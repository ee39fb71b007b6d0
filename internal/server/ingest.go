package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// maxIngestBody bounds a single submission.
const maxIngestBody = 1 << 20

type outcomeKind int

const (
	outcomeAccepted outcomeKind = iota
	outcomeSkipped
	outcomeFaulted
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeAccepted:
		return "accepted"
	case outcomeSkipped:
		return "skipped"
	default:
		return "faulted"
	}
}

// ingestOutcome is the internal result of one POST /log. Every outcome maps
// to a 200 response; only the body differs.
type ingestOutcome struct {
	kind   outcomeKind
	reason string
	err    error
	record model.Record
}

func accepted(rec model.Record) ingestOutcome {
	return ingestOutcome{kind: outcomeAccepted, record: rec}
}

func skipped(reason string) ingestOutcome {
	return ingestOutcome{kind: outcomeSkipped, reason: reason}
}

func faulted(reason string, err error) ingestOutcome {
	return ingestOutcome{kind: outcomeFaulted, reason: reason, err: err}
}

var errNotObject = errors.New("body is not a JSON object")

// parseSubmission decodes body as a JSON object with optional string fields.
// Arrays, scalars and non-string agent or content values are rejected rather
// than silently defaulted; JSON null counts as absent.
func parseSubmission(body []byte) (model.Submission, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Submission{}, err
	}
	if raw == nil {
		return model.Submission{}, errNotObject
	}
	var sub model.Submission
	for field, dst := range map[string]*string{"agent": &sub.Agent, "content": &sub.Content} {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return model.Submission{}, fmt.Errorf("field %q: %w", field, err)
		}
	}
	return sub, nil
}

// ingest turns one request body into an outcome, running accepted records
// through the pipeline.
func (s *Server) ingest(ctx context.Context, body []byte) ingestOutcome {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return skipped("empty body")
	}

	sub, err := parseSubmission(trimmed)
	if err != nil {
		return faulted("malformed submission", err)
	}

	rec, err := s.newRecord(sub)
	if err != nil {
		return faulted("record id", err)
	}
	s.accept(ctx, rec)
	return accepted(rec)
}

// handleLog handles POST /log.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var out ingestOutcome
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		out = faulted("read body", err)
	} else {
		out = s.ingest(r.Context(), body)
	}

	switch out.kind {
	case outcomeAccepted:
		s.logger.Debug("log accepted", "record_id", out.record.ID, "seq", out.record.Seq, "agent", out.record.Agent)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case outcomeSkipped:
		s.logger.Debug("log skipped", "reason", out.reason)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
	default:
		s.logger.Warn("log rejected", "outcome", out.kind, "reason", out.reason, "err", out.err)
		writeError(w, http.StatusOK, "Server Error")
	}
}

// NewIngestHandler returns the handler for the ingestion port. It serves
// only POST /log; everything else is a plain-text 404.
func (s *Server) NewIngestHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /log", s.handleLog)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "Not Found")
	})
	return mux
}
