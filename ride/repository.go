package ride

import (
	"context"
	"errors"
	"fmt"

	"github.com/semanticallynull/gocab-backend/store"
)

// Collection is the store collection rides are kept in.
const Collection = "rides"

var (
	ErrNotFound      = errors.New("ride not found")
	ErrTerminal      = errors.New("ride already finished")
	ErrInvalidStatus = errors.New("invalid ride status")
)

type Repository struct {
	rides *store.Collection
}

func NewRepository(rides *store.Collection) *Repository {
	return &Repository{rides: rides}
}

func (r *Repository) GetRides(ctx context.Context) ([]Ride, error) {
	return decodeAll(r.rides.All(ctx))
}

func (r *Repository) GetRide(ctx context.Context, id string) (Ride, error) {
	rec, err := r.rides.Find(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Ride{}, ErrNotFound
	}
	if err != nil {
		return Ride{}, err
	}
	return decode(rec)
}

func (r *Repository) GetRidesByRider(ctx context.Context, riderID string) ([]Ride, error) {
	recs, err := r.rides.Where(ctx, "riderId", riderID)
	if err != nil {
		return nil, err
	}
	return decodeAll(recs)
}

func (r *Repository) GetRidesByStatus(ctx context.Context, status Status) ([]Ride, error) {
	recs, err := r.rides.Where(ctx, "status", status)
	if err != nil {
		return nil, err
	}
	return decodeAll(recs)
}

// Create stores a new ride; the store assigns its id and timestamps.
func (r *Repository) Create(ctx context.Context, ride Ride) (Ride, error) {
	ride.ID = ""
	rec, err := r.rides.Create(ctx, ride)
	if err != nil {
		return Ride{}, err
	}
	return decode(rec)
}

func (r *Repository) Update(ctx context.Context, id string, u Update) (Ride, error) {
	rec, err := r.rides.Update(ctx, id, u)
	if errors.Is(err, store.ErrNotFound) {
		return Ride{}, ErrNotFound
	}
	if err != nil {
		return Ride{}, err
	}
	return decode(rec)
}

func decode(rec store.Record) (Ride, error) {
	var ride Ride
	if err := rec.Decode(&ride); err != nil {
		return Ride{}, fmt.Errorf("decode ride %s: %w", rec.ID(), err)
	}
	return ride, nil
}

func decodeAll(recs []store.Record) ([]Ride, error) {
	rides := make([]Ride, 0, len(recs))
	for _, rec := range recs {
		ride, err := decode(rec)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, nil
}
