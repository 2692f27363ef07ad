package alert

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func TestParse_WellFormed(t *testing.T) {
	raw := "SOS|ID=DEV-42|LAT=12.8296|LON=80.2270|DIR=NE|TYPE=FLOOD|TIME=2026-03-01T10:00:00Z"

	e := Parse(raw, fixedNow)

	if e.DeviceID != "DEV-42" {
		t.Errorf("expected device DEV-42, got %s", e.DeviceID)
	}
	if e.Lat != 12.8296 || e.Lon != 80.2270 {
		t.Errorf("unexpected coordinates: %v, %v", e.Lat, e.Lon)
	}
	if e.Direction != "NE" {
		t.Errorf("expected direction NE, got %s", e.Direction)
	}
	if e.Type != "FLOOD" {
		t.Errorf("expected type FLOOD, got %s", e.Type)
	}
	if e.Time != "2026-03-01T10:00:00Z" {
		t.Errorf("unexpected time %s", e.Time)
	}
	if e.Degraded {
		t.Error("well-formed payload should not be degraded")
	}
	if len(e.Flags) != 1 || e.Flags[0] != "SOS" {
		t.Errorf("expected SOS flag, got %v", e.Flags)
	}
}

func TestParse_Defaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Emergency
	}{
		{
			name: "empty payload",
			raw:  "",
			want: Emergency{DeviceID: "UNKNOWN", Type: "UNKNOWN", Time: "2026-03-01T10:30:00Z"},
		},
		{
			name: "bad latitude",
			raw:  "SOS|ID=A|LAT=north|LON=80.5|TYPE=FIRE|TIME=t",
			want: Emergency{DeviceID: "A", Lon: 80.5, Type: "FIRE", Time: "t"},
		},
		{
			name: "out of range longitude",
			raw:  "ID=A|LAT=10|LON=500|TYPE=FIRE|TIME=t",
			want: Emergency{DeviceID: "A", Lat: 10, Type: "FIRE", Time: "t"},
		},
		{
			name: "empty id value",
			raw:  "ID=|LAT=1|LON=2|TYPE=X|TIME=t",
			want: Emergency{DeviceID: "UNKNOWN", Lat: 1, Lon: 2, Type: "X", Time: "t"},
		},
		{
			name: "value containing equals sign",
			raw:  "ID=a=b|LAT=1|LON=2|TYPE=X|TIME=t",
			want: Emergency{DeviceID: "a=b", Lat: 1, Lon: 2, Type: "X", Time: "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw, fixedNow)
			if got.DeviceID != tt.want.DeviceID {
				t.Errorf("device: got %q, want %q", got.DeviceID, tt.want.DeviceID)
			}
			if got.Lat != tt.want.Lat || got.Lon != tt.want.Lon {
				t.Errorf("coords: got (%v,%v), want (%v,%v)", got.Lat, got.Lon, tt.want.Lat, tt.want.Lon)
			}
			if got.Type != tt.want.Type {
				t.Errorf("type: got %q, want %q", got.Type, tt.want.Type)
			}
			if got.Time != tt.want.Time {
				t.Errorf("time: got %q, want %q", got.Time, tt.want.Time)
			}
		})
	}
}

func TestParse_DegradedFlag(t *testing.T) {
	if !Parse("SOS|ID=A|LAT=1|LON=2|TYPE=X", fixedNow).Degraded {
		t.Error("missing TIME should mark the alert degraded")
	}
	if Parse("TIME=t|TYPE=X|LON=2|LAT=1|ID=A", fixedNow).Degraded {
		t.Error("token order must not matter")
	}
}

func TestParse_UnknownBareTokensTolerated(t *testing.T) {
	e := Parse("SOS|BATTERY_LOW|ID=A|LAT=1|LON=2|TYPE=X|TIME=t|FOO=bar", fixedNow)

	if e.DeviceID != "A" {
		t.Errorf("expected device A, got %s", e.DeviceID)
	}
	if len(e.Flags) != 2 || e.Flags[1] != "BATTERY_LOW" {
		t.Errorf("unexpected flags %v", e.Flags)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []Emergency{
		{DeviceID: "PHONE-1", Lat: 12.8296, Lon: 80.227, Direction: "N", Type: "MEDICAL", Time: "2026-03-01T10:00:00Z"},
		{DeviceID: "x", Lat: -33.8688, Lon: 151.2093, Type: "FIRE", Time: "2025-12-31T23:59:59+05:30"},
		{DeviceID: "zero", Lat: 0, Lon: 0, Type: "OTHER", Time: "2026-01-01T00:00:00Z"},
	}

	for _, in := range tests {
		t.Run(in.DeviceID, func(t *testing.T) {
			out := Parse(in.Encode(), fixedNow)

			if out.DeviceID != in.DeviceID || out.Lat != in.Lat || out.Lon != in.Lon ||
				out.Type != in.Type || out.Time != in.Time || out.Direction != in.Direction {
				t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
			}
		})
	}
}
