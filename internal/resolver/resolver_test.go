package resolver

import (
	"fmt"
	"math"
	"testing"
)

var (
	sholi  = Base{ID: "BASE_SHOLI", Lat: 12.8296, Lon: 80.2270, Capacity: 100, Filled: 10}
	sathya = Base{ID: "BASE_SATHYA", Lat: 13.0520, Lon: 80.2043, Capacity: 80, Filled: 70}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		filled   int
		want     CapacityStatus
	}{
		{"plenty of room", 100, 10, Available},
		{"exactly at threshold", 100, 80, Available},
		{"one below threshold", 100, 81, NearlyFull},
		{"sathya", 80, 70, NearlyFull},
		{"one slot left", 10, 9, NearlyFull},
		{"exactly full", 100, 100, Full},
		{"over capacity", 50, 75, Full},
		{"zero capacity", 0, 0, Full},
		{"capacity rounding up", 7, 5, Available}, // ceil(1.4)=2, free=2
		{"capacity rounding up near", 7, 6, NearlyFull},
		{"exact fifth", 15, 12, Available}, // ceil(3.0)=3, not 4
		{"exact fifth minus one", 15, 13, NearlyFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.capacity, tt.filled); got != tt.want {
				t.Errorf("Classify(%d, %d) = %s, want %s", tt.capacity, tt.filled, got, tt.want)
			}
		})
	}
}

func TestHaversine_SamePointIsZero(t *testing.T) {
	points := [][2]float64{{0, 0}, {12.8296, 80.2270}, {-89.9, 179.9}, {90, 0}, {-33.86, -151.2}}
	for _, p := range points {
		d := Haversine(p[0], p[1], p[0], p[1])
		if fmt.Sprintf("%.2f", d) != "0.00" {
			t.Errorf("distance from %v to itself = %v", p, d)
		}
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	d := Haversine(sholi.Lat, sholi.Lon, sathya.Lat, sathya.Lon)
	if d < 24.5 || d > 25.0 {
		t.Errorf("expected roughly 24.8 km between bases, got %.3f", d)
	}

	// A quarter of the equator.
	q := Haversine(0, 0, 0, 90)
	if math.Abs(q-math.Pi*EarthRadiusKm/2) > 1e-6 {
		t.Errorf("unexpected quarter circumference %.6f", q)
	}
}

func TestResolve_Scenarios(t *testing.T) {
	fullSholi := sholi
	fullSholi.Filled = 100

	tests := []struct {
		name  string
		bases []Base
		lat   float64
		lon   float64
		want  string
	}{
		{
			name:  "at sholi",
			bases: []Base{sholi, sathya},
			lat:   12.8296, lon: 80.2270,
			want: "ACK|SAFEBASE=BASE_SHOLI|DIST=0.00KM|CAPACITY=AVAILABLE",
		},
		{
			name:  "at sathya",
			bases: []Base{sholi, sathya},
			lat:   13.0520, lon: 80.2043,
			want: "ACK|SAFEBASE=BASE_SATHYA|DIST=0.00KM|CAPACITY=NEARLY_FULL",
		},
		{
			name:  "sholi full",
			bases: []Base{fullSholi, sathya},
			lat:   12.8296, lon: 80.2270,
			want: "ACK|SAFEBASE=BASE_SHOLI|DIST=0.00KM|CAPACITY=FULL",
		},
		{
			name:  "empty directory",
			bases: nil,
			lat:   12.8296, lon: 80.2270,
			want: "ACK|SAFEBASE=NONE|DIST=0.00KM|CAPACITY=AVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.bases, tt.lat, tt.lon).String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNearest_OrderIndependent(t *testing.T) {
	far := Base{ID: "BASE_FAR", Lat: 28.6, Lon: 77.2, Capacity: 10}
	orders := [][]Base{
		{sholi, sathya, far},
		{far, sathya, sholi},
		{sathya, far, sholi},
	}

	for _, bases := range orders {
		best, _, ok := Nearest(bases, 12.9, 80.22)
		if !ok || best.ID != "BASE_SHOLI" {
			t.Errorf("order %v: expected BASE_SHOLI, got %s", bases, best.ID)
		}
	}
}

func TestNearest_TieBreaksOnLowestID(t *testing.T) {
	a := Base{ID: "B", Lat: 1, Lon: 1}
	b := Base{ID: "A", Lat: 1, Lon: 1}

	for _, bases := range [][]Base{{a, b}, {b, a}} {
		best, _, _ := Nearest(bases, 0, 0)
		if best.ID != "A" {
			t.Errorf("expected tie to resolve to A, got %s", best.ID)
		}
	}
}

func TestNearest_Empty(t *testing.T) {
	if _, _, ok := Nearest(nil, 1, 2); ok {
		t.Error("expected ok=false for empty directory")
	}
}

func TestHaversine_AntipodalIsFinite(t *testing.T) {
	halfCircumference := math.Pi * EarthRadiusKm
	for lat := -90.0; lat <= 90; lat += 0.5 {
		for lon := -180.0; lon < 180; lon += 0.5 {
			d := Haversine(lat, lon, -lat, lon+180)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				t.Fatalf("Haversine(%v, %v) antipode = %v", lat, lon, d)
			}
			if math.Abs(d-halfCircumference) > 0.01 {
				t.Fatalf("Haversine(%v, %v) antipode = %v, want %v", lat, lon, d, halfCircumference)
			}
		}
	}
}

func TestResolve_AntipodalBaseDoesNotMaskCloserOne(t *testing.T) {
	far := Base{ID: "A_FAR", Lat: -12.8296, Lon: 80.2270 - 180, Capacity: 10}
	bases := []Base{far, sholi}

	ack := Resolve(bases, sholi.Lat, sholi.Lon)
	if ack.SafeBaseID != sholi.ID {
		t.Errorf("expected %s, got %s", sholi.ID, ack.SafeBaseID)
	}
	if got := ack.String(); got != "ACK|SAFEBASE=BASE_SHOLI|DIST=0.00KM|CAPACITY=AVAILABLE" {
		t.Errorf("unexpected ack %q", got)
	}

	onlyFar := Resolve([]Base{far}, sholi.Lat, sholi.Lon)
	if math.IsNaN(onlyFar.DistanceKm) {
		t.Error("distance to an antipodal base must be finite")
	}
}
