package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
)

// Dispatch serves a request through the router without a network hop and
// returns its envelope. Payload is encoded as the JSON body; nil sends none.
func (a *API) Dispatch(ctx context.Context, method, path string, payload any) (Envelope, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return Envelope{}, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	return DecodeEnvelope(w.Code, w.Body.Bytes())
}

// DecodeEnvelope parses a response body. Bodies that are not envelopes,
// such as an empty abort, yield an envelope carrying only the status.
func DecodeEnvelope(status int, body []byte) (Envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope{StatusCode: status, Message: http.StatusText(status)}, nil
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{StatusCode: status}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.StatusCode == 0 {
		env.StatusCode = status
	}
	return env, nil
}
