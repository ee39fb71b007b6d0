package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/presence"
)

// ErrRejected is returned by Send when the ingestion port acknowledged the
// request but reported that it could not process it.
var ErrRejected = errors.New("submission rejected by server")

// HTTPClient implements LogBridgeClient over the logbridge HTTP ports.
type HTTPClient struct {
	baseURL    string // primary port: stream, guide, query API
	ingestURL  string // ingestion port: POST /log
	httpClient *http.Client
}

// NewHTTPClient creates a client for the given primary and ingestion base
// URLs (e.g. "http://localhost:5173" and "http://localhost:9999").
func NewHTTPClient(baseURL, ingestURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ingestURL:  strings.TrimRight(ingestURL, "/"),
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Ingestion ---

func (c *HTTPClient) Send(ctx context.Context, agent, content string) (*SendResult, error) {
	data, err := json.Marshal(model.Submission{Agent: agent, Content: content})
	if err != nil {
		return nil, fmt.Errorf("marshaling submission: %w", err)
	}
	return c.sendRaw(ctx, data)
}

// sendRaw posts body to /log verbatim.
func (c *HTTPClient) sendRaw(ctx context.Context, body []byte) (*SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ingestURL+"/log", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if strings.TrimSpace(string(respBody)) == "OK" {
		return &SendResult{Heartbeat: true}, nil
	}

	var reply struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	return &SendResult{Status: reply.Status}, nil
}

// --- Stream ---

func (c *HTTPClient) Stream(ctx context.Context, since uint64, fn func(model.Record) error) error {
	u := c.baseURL + "/api/stream"
	if since > 0 {
		u += "?since=" + strconv.FormatUint(since, 10)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	err = readEvents(resp.Body, func(data []byte) error {
		var rec model.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		return fn(rec)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// maxFrameLine bounds one SSE line. A 1 MiB submission appears twice in a
// frame (content and text), and control characters still escape to six
// bytes each, so 12 MiB plus framing is the worst case.
const maxFrameLine = 16 << 20

// readEvents splits an SSE body into events and calls fn with each event's
// data. Comment lines (keepalives) are skipped.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(data); err != nil {
					return err
				}
				data = nil
			}
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
		}
	}
	return scanner.Err()
}

// --- Queries ---

func (c *HTTPClient) Recent(ctx context.Context, limit int, source string) ([]model.Record, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if source != "" {
		q.Set("source", source)
	}
	path := "/v1/logs/recent"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Records []model.Record `json:"records"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *HTTPClient) Agents(ctx context.Context, staleAfter time.Duration) ([]presence.Entry, error) {
	path := "/v1/agents"
	if staleAfter > 0 {
		path += "?stale_threshold_secs=" + strconv.Itoa(int(staleAfter.Seconds()))
	}
	var resp struct {
		Agents []presence.Entry `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

func (c *HTTPClient) Guide(ctx context.Context, city, date string) (*GuideResult, error) {
	form := url.Values{"city": {city}, "date": {date}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/guide", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result GuideResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Internal helpers ---

// APIError represents an HTTP error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request against the primary port with optional
// JSON body and decodes the JSON response.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

func (c *HTTPClient) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}
