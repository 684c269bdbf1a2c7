package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/semanticallynull/gocab-backend/api"
)

// HTTPDispatcher sends requests to a running server.
type HTTPDispatcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDispatcher returns a dispatcher for baseURL. A nil httpClient
// gets a client with a 30 second timeout.
func NewHTTPDispatcher(baseURL string, httpClient *http.Client) *HTTPDispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDispatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, method, path string, payload any) (api.Envelope, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return api.Envelope{}, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return api.Envelope{}, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return api.Envelope{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Envelope{}, fmt.Errorf("read response: %w", err)
	}
	return api.DecodeEnvelope(resp.StatusCode, b)
}
