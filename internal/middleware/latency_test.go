package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/semanticallynull/gocab-backend/internal/clock"
)

func newLatencyRouter(clk clock.Clock, d time.Duration, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Latency(clk, d))
	r.GET("/ping", func(c *gin.Context) {
		*calls++
		c.String(http.StatusOK, "pong")
	})
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "missing")
	})
	return r
}

func waitPending(t *testing.T, clk *clock.FakeClock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clk.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending waiters, got %d", n, clk.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLatencyDelaysMatchedAndUnmatchedRoutes(t *testing.T) {
	for _, path := range []string{"/ping", "/nowhere"} {
		t.Run(path, func(t *testing.T) {
			clk := clock.Fake(time.Unix(0, 0))
			var calls int
			r := newLatencyRouter(clk, 400*time.Millisecond, &calls)

			w := httptest.NewRecorder()
			done := make(chan struct{})
			go func() {
				r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				close(done)
			}()

			waitPending(t, clk, 1)
			select {
			case <-done:
				t.Fatal("request completed before latency elapsed")
			default:
			}

			clk.Advance(400 * time.Millisecond)
			<-done

			if path == "/ping" && (w.Code != http.StatusOK || calls != 1) {
				t.Errorf("expected 200 with one handler call, got %d and %d calls", w.Code, calls)
			}
			if path == "/nowhere" && (w.Code != http.StatusNotFound || calls != 0) {
				t.Errorf("expected 404 with no handler call, got %d and %d calls", w.Code, calls)
			}
		})
	}
}

func TestLatencyHonoursCancellation(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	var calls int
	r := newLatencyRouter(clk, time.Hour, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/ping", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	cancel()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var env struct {
		Data       map[string]string `json:"data"`
		StatusCode int               `json:"statusCode"`
		Message    string            `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("expected envelope body, got %q: %v", w.Body.String(), err)
	}
	if env.StatusCode != http.StatusServiceUnavailable || env.Message != cancelledMessage || env.Data["error"] != cancelledMessage {
		t.Errorf("unexpected envelope: %s", w.Body.String())
	}
	if calls != 0 {
		t.Errorf("expected handler not to run, ran %d times", calls)
	}
}

func TestZeroLatencyPassesThrough(t *testing.T) {
	var calls int
	r := newLatencyRouter(clock.Real(), 0, &calls)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK || calls != 1 {
		t.Errorf("expected immediate 200, got %d and %d calls", w.Code, calls)
	}
}
