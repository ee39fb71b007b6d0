// Package proxy forwards travel-guide requests to the downstream generator
// service and relays its reply.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUpstreamURL is the generator endpoint used when none is configured.
const DefaultUpstreamURL = "http://localhost:8888/generate"

// GuideRequest is the JSON body sent upstream.
type GuideRequest struct {
	City string `json:"city"`
	Date int    `json:"date"`
}

// Reply is the upstream status code and raw response text.
type Reply struct {
	StatusCode int
	Body       string
}

// Output renders the reply the way the guide page displays it.
func (r Reply) Output() string {
	return fmt.Sprintf("Status: %d\nResponse: %s", r.StatusCode, r.Body)
}

// Forwarder posts guide requests to a fixed upstream URL.
type Forwarder struct {
	url        string
	httpClient *http.Client
}

// New returns a Forwarder targeting url. An empty url selects
// DefaultUpstreamURL; a nil client gets a two-minute timeout since the
// generator can be slow.
func New(url string, client *http.Client) *Forwarder {
	if url == "" {
		url = DefaultUpstreamURL
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Forwarder{url: url, httpClient: client}
}

// URL returns the upstream endpoint.
func (f *Forwarder) URL() string { return f.url }

// Forward sends req upstream. Any upstream status, including 4xx and 5xx,
// is a successful Reply; only transport failures return an error.
func (f *Forwarder) Forward(ctx context.Context, req GuideRequest) (Reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshaling guide request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(data))
	if err != nil {
		return Reply{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("reading upstream response: %w", err)
	}
	return Reply{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
