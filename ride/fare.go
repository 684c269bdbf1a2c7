package ride

import (
	"math"
	"math/rand/v2"
)

const (
	// DefaultRate applies to vehicle types missing from the rate table.
	DefaultRate = 1.5

	MinDistance = 2
	MaxDistance = 16

	minutesPerDistanceUnit = 3
	// estimateDistance is the distance quoted before a ride is requested.
	estimateDistance = 5
)

var rates = map[VehicleType]float64{
	VehicleUberX:     1.2,
	VehicleUberBlack: 2.8,
	VehicleUberVan:   2.0,
}

// Rate returns the per-distance-unit multiplier for a vehicle type.
func Rate(v VehicleType) float64 {
	if r, ok := rates[v]; ok {
		return r
	}
	return DefaultRate
}

// VehicleTypes lists the vehicle types with their own rate.
func VehicleTypes() []VehicleType {
	return []VehicleType{VehicleUberX, VehicleUberBlack, VehicleUberVan}
}

// Fare is distance times the vehicle rate, rounded to cents.
func Fare(distance int, v VehicleType) float64 {
	return math.Round(float64(distance)*Rate(v)*100) / 100
}

// EstimatedDuration returns the trip length in minutes.
func EstimatedDuration(distance int) int {
	return int(math.Round(float64(distance) * minutesPerDistanceUnit))
}

// EstimateFare is the price quoted to a rider before requesting.
func EstimateFare(v VehicleType) float64 {
	return Fare(estimateDistance, v)
}

// RandomDistance simulates a trip distance in [MinDistance, MaxDistance].
func RandomDistance() int {
	return MinDistance + rand.IntN(MaxDistance-MinDistance+1)
}
