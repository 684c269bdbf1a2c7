package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/gocab-backend/api"
	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/clock"
	"github.com/semanticallynull/gocab-backend/internal/gemini"
	"github.com/semanticallynull/gocab-backend/internal/o11y"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/store"
	"github.com/semanticallynull/gocab-backend/user"
)

type stack struct {
	api   *api.API
	clock *clock.FakeClock
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	backend := store.NewMemory()
	ur := user.NewRepository(store.NewCollection(user.Collection, backend, store.WithClock(clk)))
	if _, err := ur.Seed(context.Background(), user.DefaultUsers()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rs := ride.NewService(ride.NewRepository(store.NewCollection(ride.Collection, backend, store.WithClock(clk))), ride.Config{
		Clock:    clk,
		Distance: func() int { return 10 },
		Registry: prometheus.NewRegistry(),
	})
	t.Cleanup(rs.Close)

	obs := &o11y.Observability{Logger: slog.New(slog.DiscardHandler), Registry: prometheus.NewRegistry()}
	a := api.New(ur, rs, nil, gemini.NewFakeClient(), obs, api.Config{Clock: clk})
	return &stack{api: a, clock: clk}
}

func newClient(t *testing.T, d Dispatcher) (*Client, <-chan events.Change) {
	t.Helper()
	bus := events.NewBus(nil)
	changes, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)
	return New(d, bus, nil), changes
}

func drain(changes <-chan events.Change) []events.Change {
	var out []events.Change
	for {
		select {
		case c := <-changes:
			out = append(out, c)
		default:
			return out
		}
	}
}

type countingDispatcher struct {
	calls int
	env   api.Envelope
	err   error
}

func (d *countingDispatcher) Dispatch(context.Context, string, string, any) (api.Envelope, error) {
	d.calls++
	return d.env, d.err
}

func TestLogin(t *testing.T) {
	s := newStack(t)
	c, changes := newClient(t, s.api)
	ctx := context.Background()

	_, err := c.Login(ctx, "alice@gocab.com", user.RoleDriver)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := c.CurrentUser(); ok {
		t.Error("expected no session after failed login")
	}
	if got := drain(changes); len(got) != 0 {
		t.Errorf("expected no change after failed login, got %v", got)
	}

	u, err := c.Login(ctx, "alice@gocab.com", user.RoleRider)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Role != user.RoleRider {
		t.Errorf("expected RIDER, got %s", u.Role)
	}
	if cur, ok := c.CurrentUser(); !ok || cur.ID != "rider_1" {
		t.Errorf("expected rider_1 in session, got %+v", cur)
	}
	got := drain(changes)
	if len(got) != 1 || got[0].Kind != events.KindSession {
		t.Errorf("expected one session change, got %v", got)
	}

	c.Logout()
	if _, ok := c.CurrentUser(); ok {
		t.Error("expected no session after logout")
	}
	if got := drain(changes); len(got) != 1 {
		t.Errorf("expected logout to notify once, got %v", got)
	}
}

func TestMethodsWithoutSessionAreNoOps(t *testing.T) {
	d := &countingDispatcher{}
	c, changes := newClient(t, d)
	ctx := context.Background()

	if _, err := c.RequestRide(ctx, ride.Location{}, ride.Location{}, ride.VehicleUberX); !errors.Is(err, ErrNoSession) {
		t.Errorf("RequestRide: expected ErrNoSession, got %v", err)
	}
	if _, err := c.AcceptRide(ctx, "ride"); !errors.Is(err, ErrNoSession) {
		t.Errorf("AcceptRide: expected ErrNoSession, got %v", err)
	}
	if _, err := c.ToggleOnline(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("ToggleOnline: expected ErrNoSession, got %v", err)
	}
	if d.calls != 0 {
		t.Errorf("expected no dispatch, got %d", d.calls)
	}
	if got := drain(changes); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}
}

func TestGetRidesEmptyOnFailure(t *testing.T) {
	ctx := context.Background()

	c, _ := newClient(t, &countingDispatcher{err: errors.New("connection refused")})
	rides, err := c.GetRides(ctx)
	if err == nil || rides == nil || len(rides) != 0 {
		t.Errorf("expected empty slice and error, got %v and %v", rides, err)
	}

	c, _ = newClient(t, &countingDispatcher{env: api.Envelope{StatusCode: http.StatusInternalServerError}})
	rides, err = c.GetRides(ctx)
	if err == nil || rides == nil || len(rides) != 0 {
		t.Errorf("expected empty slice and error, got %v and %v", rides, err)
	}
}

func TestRideLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	rider, riderChanges := newClient(t, s.api)
	driver, _ := newClient(t, s.api)

	if _, err := rider.Login(ctx, "alice@gocab.com", user.RoleRider); err != nil {
		t.Fatalf("rider login: %v", err)
	}
	if _, err := driver.Login(ctx, "bob@gocab.com", user.RoleDriver); err != nil {
		t.Fatalf("driver login: %v", err)
	}
	drain(riderChanges)

	requested, err := rider.RequestRide(ctx,
		ride.Location{Address: "Times Square, NY"},
		ride.Location{Address: "Central Park, NY"},
		ride.VehicleUberX,
	)
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	if requested.RiderID != "rider_1" || requested.Status != ride.StatusSearching {
		t.Errorf("unexpected ride %+v", requested)
	}
	got := drain(riderChanges)
	if len(got) != 1 || got[0].Collection != ride.Collection || got[0].ID != requested.ID {
		t.Errorf("expected one ride change, got %v", got)
	}

	online, err := driver.ToggleOnline(ctx)
	if err != nil {
		t.Fatalf("toggle online: %v", err)
	}
	if !online.Online() {
		t.Error("expected driver online")
	}
	if cur, _ := driver.CurrentUser(); !cur.Online() {
		t.Error("expected session user to be replaced")
	}

	s.clock.Advance(ride.DefaultMatchDelay)
	rides, err := driver.GetRides(ctx)
	if err != nil {
		t.Fatalf("get rides: %v", err)
	}
	pending := ride.PendingRequests(rides)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}

	accepted, err := driver.AcceptRide(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != ride.StatusAccepted || accepted.DriverID != "driver_1" {
		t.Errorf("expected ACCEPTED by driver_1, got %s/%q", accepted.Status, accepted.DriverID)
	}

	for _, status := range []ride.Status{ride.StatusArrived, ride.StatusInProgress, ride.StatusCompleted} {
		r, err := driver.UpdateRideStatus(ctx, accepted.ID, status)
		if err != nil {
			t.Fatalf("update to %s: %v", status, err)
		}
		if r.Status != status || r.DriverID != "driver_1" {
			t.Errorf("expected %s with driver_1, got %s/%q", status, r.Status, r.DriverID)
		}
	}

	if _, err := rider.CancelRide(ctx, accepted.ID); err == nil {
		t.Error("expected cancelling a completed ride to fail")
	}
}

func TestUpdateUnknownRide(t *testing.T) {
	s := newStack(t)
	c, changes := newClient(t, s.api)

	_, err := c.UpdateRideStatus(context.Background(), "missing", ride.StatusArrived)
	var se *api.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 status error, got %v", err)
	}
	if got := drain(changes); len(got) != 0 {
		t.Errorf("expected no change for failed update, got %v", got)
	}
}

// loginOnly serves logins from the real router and fails everything else.
type loginOnly struct {
	next Dispatcher
	env  api.Envelope
	err  error
}

func (d *loginOnly) Dispatch(ctx context.Context, method, path string, payload any) (api.Envelope, error) {
	if path == "/api/login" {
		return d.next.Dispatch(ctx, method, path, payload)
	}
	return d.env, d.err
}

func TestFailedMutationsDoNotNotify(t *testing.T) {
	failures := map[string]*loginOnly{
		"server error": {env: api.Envelope{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}},
		"not found":    {env: api.Envelope{StatusCode: http.StatusNotFound, Message: "Ride not found"}},
		"transport":    {err: errors.New("connection refused")},
	}
	for name, d := range failures {
		t.Run(name, func(t *testing.T) {
			s := newStack(t)
			d.next = s.api
			c, changes := newClient(t, d)
			ctx := context.Background()

			if _, err := c.Login(ctx, "bob@gocab.com", user.RoleDriver); err != nil {
				t.Fatalf("login: %v", err)
			}
			drain(changes)

			if _, err := c.RequestRide(ctx, ride.Location{}, ride.Location{}, ride.VehicleUberX); err == nil {
				t.Error("RequestRide: expected error")
			}
			if _, err := c.AcceptRide(ctx, "ride"); err == nil {
				t.Error("AcceptRide: expected error")
			}
			if _, err := c.UpdateRideStatus(ctx, "ride", ride.StatusArrived); err == nil {
				t.Error("UpdateRideStatus: expected error")
			}
			if _, err := c.CancelRide(ctx, "ride"); err == nil {
				t.Error("CancelRide: expected error")
			}
			if got := drain(changes); len(got) != 0 {
				t.Errorf("expected no change for failed mutations, got %v", got)
			}
		})
	}
}

func TestHTTPDispatcher(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.api.Router())
	defer srv.Close()

	c, _ := newClient(t, NewHTTPDispatcher(srv.URL+"/", nil))
	ctx := context.Background()

	if _, err := c.Login(ctx, "bob@gocab.com", user.RoleDriver); err != nil {
		t.Fatalf("login over http: %v", err)
	}
	if _, err := c.Login(ctx, "bob@gocab.com", user.RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized over http, got %v", err)
	}

	env, err := NewHTTPDispatcher(srv.URL, nil).Dispatch(ctx, http.MethodGet, "/api/unknown", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.StatusCode != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, env.StatusCode)
	}
}
