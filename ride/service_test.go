package ride

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/clock"
	"github.com/semanticallynull/gocab-backend/store"
)

type testService struct {
	*Service
	repo    *Repository
	clock   *clock.FakeClock
	changes <-chan events.Change
}

func newTestService(t *testing.T, distance int) *testService {
	t.Helper()

	clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := NewRepository(store.NewCollection(Collection, store.NewMemory(), store.WithClock(clk)))
	bus := events.NewBus(nil)
	changes, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	svc := NewService(repo, Config{
		Clock:    clk,
		Distance: func() int { return distance },
		Events:   bus,
		Registry: prometheus.NewRegistry(),
	})
	t.Cleanup(svc.Close)

	return &testService{Service: svc, repo: repo, clock: clk, changes: changes}
}

func (ts *testService) drain() []events.Change {
	var out []events.Change
	for {
		select {
		case c := <-ts.changes:
			out = append(out, c)
		default:
			return out
		}
	}
}

var (
	pickup  = Location{Address: "Times Square, NY"}
	dropoff = Location{Address: "Central Park, NY"}
)

func TestCreateRideComputesFareAndDuration(t *testing.T) {
	ts := newTestService(t, 10)

	r, err := ts.CreateRide(context.Background(), "rider_1", pickup, dropoff, VehicleUberX)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if r.Fare != 12.00 {
		t.Errorf("expected fare 12.00, got %v", r.Fare)
	}
	if r.EstimatedDuration != 30 {
		t.Errorf("expected duration 30, got %d", r.EstimatedDuration)
	}
	if r.Status != StatusSearching {
		t.Errorf("expected status %s, got %s", StatusSearching, r.Status)
	}
	if r.DriverID != "" {
		t.Errorf("expected no driver, got %q", r.DriverID)
	}
	if r.ID == "" || r.CreatedAt.IsZero() {
		t.Errorf("expected id and creation time, got %+v", r)
	}

	changes := ts.drain()
	if len(changes) != 1 || changes[0].Kind != events.KindCreated || changes[0].ID != r.ID {
		t.Errorf("expected one created change for %s, got %+v", r.ID, changes)
	}
}

func TestFareFollowsRateTable(t *testing.T) {
	for _, v := range append(VehicleTypes(), VehicleType("Tuk Tuk")) {
		for d := MinDistance; d <= MaxDistance; d++ {
			ts := newTestService(t, d)
			r, err := ts.CreateRide(context.Background(), "rider_1", pickup, dropoff, v)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			want := math.Round(float64(d)*Rate(v)*100) / 100
			if r.Fare != want {
				t.Errorf("%s distance %d: expected fare %v, got %v", v, d, want, r.Fare)
			}
			if r.EstimatedDuration != d*3 {
				t.Errorf("%s distance %d: expected duration %d, got %d", v, d, d*3, r.EstimatedDuration)
			}
		}
	}

	if Rate("Tuk Tuk") != DefaultRate {
		t.Errorf("expected unknown vehicle to use default rate, got %v", Rate("Tuk Tuk"))
	}
}

func TestRandomDistanceStaysInRange(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		d := RandomDistance()
		if d < MinDistance || d > MaxDistance {
			t.Fatalf("distance %d out of range", d)
		}
		seen[d] = true
	}
	if len(seen) != MaxDistance-MinDistance+1 {
		t.Errorf("expected every distance in range to occur, saw %d values", len(seen))
	}
}

func TestMatchOffersRideAfterDelay(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberBlack)
	ts.drain()

	ts.clock.Advance(DefaultMatchDelay - time.Millisecond)
	got, _ := ts.GetRide(ctx, r.ID)
	if got.Status != StatusSearching {
		t.Fatalf("expected ride still searching before delay, got %s", got.Status)
	}

	ts.clock.Advance(time.Millisecond)
	got, _ = ts.GetRide(ctx, r.ID)
	if got.Status != StatusPendingAcceptance {
		t.Fatalf("expected %s after delay, got %s", StatusPendingAcceptance, got.Status)
	}
	if ts.PendingMatches() != 0 {
		t.Errorf("expected no pending matches, got %d", ts.PendingMatches())
	}

	changes := ts.drain()
	if len(changes) != 1 || changes[0].Kind != events.KindUpdated {
		t.Errorf("expected one update change, got %+v", changes)
	}

	ts.clock.Advance(time.Hour)
	got, _ = ts.GetRide(ctx, r.ID)
	if got.Status != StatusPendingAcceptance {
		t.Errorf("expected ride to wait indefinitely in %s, got %s", StatusPendingAcceptance, got.Status)
	}
}

func TestMatchIsNoOpWhenStatusChanged(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)

	// Change the ride behind the service's back so the timer still fires.
	if _, err := ts.repo.Update(ctx, r.ID, Update{Status: ptr(StatusCancelled)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	ts.drain()

	ts.clock.Advance(DefaultMatchDelay)
	got, _ := ts.GetRide(ctx, r.ID)
	if got.Status != StatusCancelled {
		t.Errorf("expected ride to stay %s, got %s", StatusCancelled, got.Status)
	}
	if changes := ts.drain(); len(changes) != 0 {
		t.Errorf("expected no change from a skipped match, got %+v", changes)
	}
}

func TestCancelStopsPendingMatch(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)
	if ts.PendingMatches() != 1 {
		t.Fatalf("expected 1 pending match, got %d", ts.PendingMatches())
	}

	cancelled, err := ts.CancelRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected %s, got %s", StatusCancelled, cancelled.Status)
	}
	if ts.PendingMatches() != 0 {
		t.Errorf("expected match timer to be stopped, got %d pending", ts.PendingMatches())
	}

	ts.clock.Advance(DefaultMatchDelay)
	got, _ := ts.GetRide(ctx, r.ID)
	if got.Status != StatusCancelled {
		t.Errorf("expected ride to stay cancelled, got %s", got.Status)
	}

	if _, err := ts.CancelRide(ctx, r.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal cancelling twice, got %v", err)
	}
	if _, err := ts.CancelRide(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptSetsStatusAndDriverTogether(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)
	ts.clock.Advance(DefaultMatchDelay)

	accepted, err := ts.UpdateRide(ctx, r.ID, Update{Status: ptr(StatusAccepted), DriverID: ptr("driver_1")})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusAccepted || accepted.DriverID != "driver_1" {
		t.Errorf("expected ACCEPTED by driver_1, got %s by %q", accepted.Status, accepted.DriverID)
	}

	stored, _ := ts.GetRide(ctx, r.ID)
	if stored.Status != StatusAccepted || stored.DriverID != "driver_1" {
		t.Errorf("stored ride has %s by %q", stored.Status, stored.DriverID)
	}
}

func TestSequentialUpdatesKeepDriver(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)
	ts.clock.Advance(DefaultMatchDelay)

	if _, err := ts.UpdateRide(ctx, r.ID, Update{Status: ptr(StatusAccepted), DriverID: ptr("driver_1")}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := ts.UpdateRide(ctx, r.ID, Update{Status: ptr(StatusArrived)}); err != nil {
		t.Fatalf("arrive: %v", err)
	}

	got, _ := ts.GetRide(ctx, r.ID)
	if got.Status != StatusArrived {
		t.Errorf("expected %s, got %s", StatusArrived, got.Status)
	}
	if got.DriverID != "driver_1" {
		t.Errorf("expected driver to stay driver_1, got %q", got.DriverID)
	}
	if got.Fare != r.Fare {
		t.Errorf("expected fare to stay %v, got %v", r.Fare, got.Fare)
	}
}

func TestUpdateRideErrors(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	if _, err := ts.UpdateRide(ctx, "missing", Update{Status: ptr(StatusArrived)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)
	if _, err := ts.UpdateRide(ctx, r.ID, Update{Status: ptr(Status("TELEPORTED"))}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCloseStopsTimers(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(t, 5)

	r, _ := ts.CreateRide(ctx, "rider_1", pickup, dropoff, VehicleUberX)
	ts.Close()
	ts.clock.Advance(DefaultMatchDelay)

	got, _ := ts.GetRide(ctx, r.ID)
	if got.Status != StatusSearching {
		t.Errorf("expected ride to stay searching after close, got %s", got.Status)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSearching, StatusPendingAcceptance, true},
		{StatusPendingAcceptance, StatusAccepted, true},
		{StatusAccepted, StatusArrived, true},
		{StatusArrived, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusSearching, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusSearching, StatusAccepted, false},
		{StatusArrived, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusSearching, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
