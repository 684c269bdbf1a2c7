package ride

import "math"

// PendingRequests returns the rides waiting for a driver to accept.
func PendingRequests(rides []Ride) []Ride {
	var pending []Ride
	for _, r := range rides {
		if r.Status == StatusPendingAcceptance {
			pending = append(pending, r)
		}
	}
	return pending
}

// ActiveForDriver returns the driver's accepted, arrived or in-progress
// ride.
func ActiveForDriver(rides []Ride, driverID string) (Ride, bool) {
	for _, r := range rides {
		if r.DriverID != driverID {
			continue
		}
		switch r.Status {
		case StatusAccepted, StatusArrived, StatusInProgress:
			return r, true
		}
	}
	return Ride{}, false
}

// ActiveForRider returns the rider's first ride that has not finished.
func ActiveForRider(rides []Ride, riderID string) (Ride, bool) {
	for _, r := range rides {
		if r.RiderID == riderID && !r.Status.Terminal() {
			return r, true
		}
	}
	return Ride{}, false
}

// Summary is the platform overview shown to administrators.
type Summary struct {
	TotalRevenue float64 `json:"totalRevenue"`
	RideCount    int     `json:"rideCount"`
	Completed    int     `json:"completed"`
	Cancelled    int     `json:"cancelled"`
	// Active counts rides currently in progress.
	Active   int            `json:"active"`
	AvgFare  float64        `json:"avgFare"`
	ByStatus map[Status]int `json:"byStatus"`
}

// Summarize aggregates fares and status counts. Revenue includes every
// ride's fare regardless of status.
func Summarize(rides []Ride) Summary {
	s := Summary{
		RideCount: len(rides),
		ByStatus:  make(map[Status]int),
	}
	for _, r := range rides {
		s.TotalRevenue += r.Fare
		s.ByStatus[r.Status]++
	}
	s.Completed = s.ByStatus[StatusCompleted]
	s.Cancelled = s.ByStatus[StatusCancelled]
	s.Active = s.ByStatus[StatusInProgress]

	s.TotalRevenue = roundCents(s.TotalRevenue)
	count := s.RideCount
	if count == 0 {
		count = 1
	}
	s.AvgFare = roundCents(s.TotalRevenue / float64(count))
	return s
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
