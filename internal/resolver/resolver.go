// Package resolver finds the nearest safe base for an alert and classifies
// how much room it has left.
package resolver

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// NoBase is the safe-base id reported when the directory is empty.
const NoBase = "NONE"

// CapacityStatus classifies a base's remaining headroom.
type CapacityStatus string

const (
	Available  CapacityStatus = "AVAILABLE"
	NearlyFull CapacityStatus = "NEARLY_FULL"
	Full       CapacityStatus = "FULL"
)

// Base is the read-only view of a safe base the resolver needs.
type Base struct {
	ID       string
	Lat      float64
	Lon      float64
	Capacity int
	Filled   int
}

// Ack is the resolution result returned to the sender.
type Ack struct {
	SafeBaseID     string         `json:"safeBaseId"`
	DistanceKm     float64        `json:"distanceKm"`
	CapacityStatus CapacityStatus `json:"capacityStatus"`
}

// String renders the fixed ack wire format.
func (a Ack) String() string {
	return fmt.Sprintf("ACK|SAFEBASE=%s|DIST=%.2fKM|CAPACITY=%s", a.SafeBaseID, a.DistanceKm, a.CapacityStatus)
}

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push a just past 1 near antipodal points.
	a = math.Max(0, math.Min(1, a))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Classify maps (capacity, filled) onto a CapacityStatus.
//
//	free <= 0                   -> FULL
//	free <  ceil(capacity*0.2)  -> NEARLY_FULL
//	otherwise                   -> AVAILABLE
func Classify(capacity, filled int) CapacityStatus {
	free := capacity - filled
	if free <= 0 {
		return Full
	}
	// Integer form of ceil(capacity*0.2) to avoid float rounding at the boundary.
	threshold := (capacity + 4) / 5
	if free < threshold {
		return NearlyFull
	}
	return Available
}

// Nearest scans bases and returns the closest one to (lat, lon). Equal
// distances resolve to the lowest id, so the result does not depend on the
// order of bases. ok is false when bases is empty.
func Nearest(bases []Base, lat, lon float64) (best Base, distanceKm float64, ok bool) {
	for _, b := range bases {
		d := Haversine(lat, lon, b.Lat, b.Lon)
		if !ok || d < distanceKm || (d == distanceKm && b.ID < best.ID) {
			best, distanceKm, ok = b, d, true
		}
	}
	return best, distanceKm, ok
}

// Resolve builds the Ack for an alert at (lat, lon).
func Resolve(bases []Base, lat, lon float64) Ack {
	best, dist, ok := Nearest(bases, lat, lon)
	if !ok {
		return Ack{SafeBaseID: NoBase, DistanceKm: 0, CapacityStatus: Available}
	}
	return Ack{
		SafeBaseID:     best.ID,
		DistanceKm:     dist,
		CapacityStatus: Classify(best.Capacity, best.Filled),
	}
}
