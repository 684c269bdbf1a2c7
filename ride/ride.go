// Package ride holds the ride lifecycle: the Ride entity, fare rules, the
// repository over the entity store and the Service that creates rides and
// simulates driver matching.
package ride

import (
	"time"
)

type Status string

const (
	StatusSearching         Status = "SEARCHING"
	StatusPendingAcceptance Status = "PENDING_ACCEPTANCE"
	StatusAccepted          Status = "ACCEPTED"
	StatusArrived           Status = "ARRIVED"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// lifecycle is the forward order a ride moves through.
var lifecycle = []Status{
	StatusSearching,
	StatusPendingAcceptance,
	StatusAccepted,
	StatusArrived,
	StatusInProgress,
	StatusCompleted,
}

func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	for _, l := range lifecycle {
		if s == l {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the status that follows s in the lifecycle, or false when
// s is terminal.
func (s Status) Next() (Status, bool) {
	for i, l := range lifecycle[:len(lifecycle)-1] {
		if s == l {
			return lifecycle[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether moving from one status to another follows
// the lifecycle: exactly one step forward, or to cancelled from any
// non-terminal status. UpdateRide does not enforce it.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

type VehicleType string

const (
	VehicleUberX     VehicleType = "UberX"
	VehicleUberBlack VehicleType = "Uber Black"
	VehicleUberVan   VehicleType = "Uber Van"
)

// Location is a pickup or dropoff point. Coordinates are placeholders and
// always zero; Address is what gets displayed.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type Ride struct {
	ID      string `json:"id,omitempty"`
	RiderID string `json:"riderId"`
	// DriverID is empty until a driver accepts the ride.
	DriverID    string      `json:"driverId,omitempty"`
	Pickup      Location    `json:"pickup"`
	Dropoff     Location    `json:"dropoff"`
	Status      Status      `json:"status"`
	Fare        float64     `json:"fare"`
	Distance    int         `json:"distance"`
	VehicleType VehicleType `json:"vehicleType"`
	// EstimatedDuration is in minutes.
	EstimatedDuration int       `json:"estimatedDuration"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Update is a partial ride update. Nil fields are left untouched.
type Update struct {
	Status   *Status `json:"status,omitempty"`
	DriverID *string `json:"driverId,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}
