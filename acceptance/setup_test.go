package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/gocab-backend/api"
	"github.com/semanticallynull/gocab-backend/internal/app"
	"github.com/semanticallynull/gocab-backend/internal/clock"
	"github.com/semanticallynull/gocab-backend/internal/o11y"
	"github.com/semanticallynull/gocab-backend/ride"
)

type TestServer struct {
	App    *app.App
	Router *gin.Engine
	Clock  *clock.FakeClock
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	obs := &o11y.Observability{
		Logger:   slog.New(slog.DiscardHandler),
		Registry: prometheus.NewRegistry(),
	}

	a, err := app.New(context.Background(), app.Config{
		Storage:  app.StorageMemory,
		Clock:    clk,
		Distance: func() int { return 10 },
	}, obs)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return &TestServer{
		App:    a,
		Router: a.API.Router(),
		Clock:  clk,
	}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}) *httptest.ResponseRecorder {
	return ts.send(http.MethodPost, path, body)
}

func (ts *TestServer) PATCH(path string, body interface{}) *httptest.ResponseRecorder {
	return ts.send(http.MethodPatch, path, body)
}

func (ts *TestServer) send(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// Helper to request a ride as the seeded rider
func (ts *TestServer) CreateTestRide(t *testing.T, vehicle ride.VehicleType) ride.Ride {
	t.Helper()
	w := ts.POST("/api/rides", map[string]interface{}{
		"riderId":     "rider_1",
		"pickup":      map[string]interface{}{"lat": 0, "lng": 0, "address": "Times Square, NY"},
		"dropoff":     map[string]interface{}{"lat": 0, "lng": 0, "address": "Central Park, NY"},
		"vehicleType": vehicle,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var r ride.Ride
	decodeData(t, w, &r)
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) api.Envelope {
	t.Helper()
	var env api.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v: %s", err, w.Body.String())
	}
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data: %v: %s", err, w.Body.String())
	}
}
