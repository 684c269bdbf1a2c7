package ride

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/clock"
)

// DefaultMatchDelay is how long a new ride stays in searching before it is
// offered to drivers.
const DefaultMatchDelay = 3 * time.Second

type Config struct {
	MatchDelay time.Duration
	Clock      clock.Clock
	// Distance simulates a trip distance. Defaults to RandomDistance.
	Distance func() int
	Logger   *slog.Logger
	// Events receives a Change after every ride mutation, including the
	// automatic match. Optional.
	Events events.Publisher
	// Registry registers the ride counters. Optional.
	Registry prometheus.Registerer
}

// Service applies the ride business rules. All writes it makes to a ride
// are serialized, so the match timer's status check and its update cannot
// interleave with a cancel or an accept issued through the Service.
type Service struct {
	rides      *Repository
	matchDelay time.Duration
	clock      clock.Clock
	distance   func() int
	logger     *slog.Logger
	events     events.Publisher
	metrics    *metrics

	writeMu sync.Mutex

	timersMu sync.Mutex
	timers   map[string]clock.Timer
	closed   bool
}

func NewService(rides *Repository, cfg Config) *Service {
	s := &Service{
		rides:      rides,
		matchDelay: cfg.MatchDelay,
		clock:      cfg.Clock,
		distance:   cfg.Distance,
		logger:     cfg.Logger,
		events:     cfg.Events,
		metrics:    newMetrics(cfg.Registry),
		timers:     make(map[string]clock.Timer),
	}
	if s.matchDelay <= 0 {
		s.matchDelay = DefaultMatchDelay
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.distance == nil {
		s.distance = RandomDistance
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// ListRides returns every ride. Filtering by role is up to the caller.
func (s *Service) ListRides(ctx context.Context) ([]Ride, error) {
	return s.rides.GetRides(ctx)
}

func (s *Service) GetRide(ctx context.Context, id string) (Ride, error) {
	return s.rides.GetRide(ctx, id)
}

// CreateRide prices and stores a new ride in searching status and
// schedules the match that offers it to drivers. It returns without
// waiting for the match.
func (s *Service) CreateRide(ctx context.Context, riderID string, pickup, dropoff Location, vehicleType VehicleType) (Ride, error) {
	ctx, span := otel.Tracer("ride").Start(ctx, "CreateRide")
	defer span.End()

	distance := s.distance()
	ride, err := s.rides.Create(ctx, Ride{
		RiderID:           riderID,
		Pickup:            pickup,
		Dropoff:           dropoff,
		Status:            StatusSearching,
		Fare:              Fare(distance, vehicleType),
		Distance:          distance,
		VehicleType:       vehicleType,
		EstimatedDuration: EstimatedDuration(distance),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create ride")
		return Ride{}, fmt.Errorf("create ride: %w", err)
	}
	span.SetAttributes(
		attribute.String("ride.id", ride.ID),
		attribute.Int("ride.distance", distance),
		attribute.Float64("ride.fare", ride.Fare),
	)

	s.metrics.created.WithLabelValues(string(vehicleType)).Inc()
	s.publish(ride.ID, events.KindCreated)
	s.logger.InfoContext(ctx, "ride requested",
		"ride_id", ride.ID,
		"rider_id", riderID,
		"vehicle_type", vehicleType,
		"fare", ride.Fare,
	)

	s.scheduleMatch(ride.ID)
	return ride, nil
}

// UpdateRide applies u to the ride. The lifecycle order is not checked.
func (s *Service) UpdateRide(ctx context.Context, id string, u Update) (Ride, error) {
	ctx, span := otel.Tracer("ride").Start(ctx, "UpdateRide")
	defer span.End()
	span.SetAttributes(attribute.String("ride.id", id))

	if u.Status != nil && !u.Status.Valid() {
		return Ride{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}

	s.writeMu.Lock()
	ride, err := s.rides.Update(ctx, id, u)
	s.writeMu.Unlock()
	if err != nil {
		span.RecordError(err)
		return Ride{}, err
	}

	if u.Status != nil {
		s.metrics.transitions.WithLabelValues(string(*u.Status)).Inc()
		if *u.Status != StatusSearching {
			s.stopMatch(id)
		}
	}
	s.publish(id, events.KindUpdated)
	s.logger.InfoContext(ctx, "ride updated", "ride_id", id, "status", ride.Status, "driver_id", ride.DriverID)
	return ride, nil
}

// CancelRide moves a non-terminal ride to cancelled and drops its pending
// match.
func (s *Service) CancelRide(ctx context.Context, id string) (Ride, error) {
	ctx, span := otel.Tracer("ride").Start(ctx, "CancelRide")
	defer span.End()
	span.SetAttributes(attribute.String("ride.id", id))

	s.writeMu.Lock()
	current, err := s.rides.GetRide(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		return Ride{}, err
	}
	if current.Status.Terminal() {
		s.writeMu.Unlock()
		return Ride{}, fmt.Errorf("%w: %s is %s", ErrTerminal, id, current.Status)
	}
	ride, err := s.rides.Update(ctx, id, Update{Status: ptr(StatusCancelled)})
	s.writeMu.Unlock()
	if err != nil {
		return Ride{}, err
	}

	s.stopMatch(id)
	s.metrics.transitions.WithLabelValues(string(StatusCancelled)).Inc()
	s.publish(id, events.KindUpdated)
	s.logger.InfoContext(ctx, "ride cancelled", "ride_id", id, "previous_status", current.Status)
	return ride, nil
}

// PendingMatches returns the number of rides still waiting for their
// match timer.
func (s *Service) PendingMatches() int {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return len(s.timers)
}

// Close stops every pending match timer. Rides already stored keep their
// status.
func (s *Service) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) scheduleMatch(id string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if s.closed {
		return
	}
	s.timers[id] = s.clock.AfterFunc(s.matchDelay, func() { s.match(id) })
}

func (s *Service) stopMatch(id string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// match offers a ride to drivers if it is still searching. Anything else
// means the ride moved on before the delay elapsed, and match does nothing.
func (s *Service) match(id string) {
	s.timersMu.Lock()
	delete(s.timers, id)
	s.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.writeMu.Lock()
	current, err := s.rides.GetRide(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.WarnContext(ctx, "match skipped, ride not readable", "ride_id", id, "error", err)
		return
	}
	if current.Status != StatusSearching {
		s.writeMu.Unlock()
		s.logger.DebugContext(ctx, "match skipped", "ride_id", id, "status", current.Status)
		return
	}
	_, err = s.rides.Update(ctx, id, Update{Status: ptr(StatusPendingAcceptance)})
	s.writeMu.Unlock()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to offer ride", "ride_id", id, "error", err)
		return
	}

	s.metrics.matches.Inc()
	s.metrics.transitions.WithLabelValues(string(StatusPendingAcceptance)).Inc()
	s.publish(id, events.KindUpdated)
	s.logger.InfoContext(ctx, "ride offered to drivers", "ride_id", id)
}

func (s *Service) publish(id string, kind events.Kind) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Change{
		Collection: Collection,
		ID:         id,
		Kind:       kind,
		At:         s.clock.Now().UTC(),
	})
}

type metrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	matches     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocab_rides_created_total",
				Help: "Rides requested, by vehicle type",
			},
			[]string{"vehicle_type"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocab_ride_status_transitions_total",
				Help: "Ride status changes, by new status",
			},
			[]string{"status"},
		),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gocab_ride_matches_total",
			Help: "Rides moved from searching to pending acceptance by the match timer",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.transitions, m.matches)
	}
	return m
}
