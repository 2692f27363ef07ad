// Package alert parses and encodes the pipe-delimited SOS wire format.
//
//	SOS|ID=<deviceId>|LAT=<lat>|LON=<lon>|DIR=<dir>|TYPE=<category>|TIME=<ISO8601>
//
// Tokens are order independent. Parsing never fails: missing or malformed
// fields fall back to defaults and mark the result as degraded.
package alert

import (
	"strconv"
	"strings"
	"time"
)

// Defaults applied when a field is missing or unparsable.
const (
	DefaultDeviceID = "UNKNOWN"
	DefaultType     = "UNKNOWN"

	Prefix = "SOS"
)

// Emergency is the structured view of a raw alert payload.
type Emergency struct {
	DeviceID  string   `json:"deviceId"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Direction string   `json:"direction,omitempty"`
	Type      string   `json:"type"`
	Time      string   `json:"time"`
	Flags     []string `json:"flags,omitempty"`
	Degraded  bool     `json:"degraded"`
}

// Parse splits raw on '|' and each token on its first '='. Tokens without '='
// are kept in Flags. now supplies the default TIME.
func Parse(raw string, now time.Time) Emergency {
	e := Emergency{
		DeviceID: DefaultDeviceID,
		Type:     DefaultType,
	}

	var haveID, haveLat, haveLon, haveType, haveTime bool

	for _, tok := range strings.Split(raw, "|") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			e.Flags = append(e.Flags, tok)
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "ID":
			if value != "" {
				e.DeviceID = value
				haveID = true
			}
		case "LAT":
			if f, err := parseCoord(value, 90); err == nil {
				e.Lat = f
				haveLat = true
			}
		case "LON":
			if f, err := parseCoord(value, 180); err == nil {
				e.Lon = f
				haveLon = true
			}
		case "DIR":
			e.Direction = value
		case "TYPE":
			if value != "" {
				e.Type = value
				haveType = true
			}
		case "TIME":
			if value != "" {
				e.Time = value
				haveTime = true
			}
		}
	}

	if !haveTime {
		e.Time = now.UTC().Format(time.RFC3339)
	}

	e.Degraded = !(haveID && haveLat && haveLon && haveType && haveTime)

	return e
}

// Encode renders e back into the wire format. Flags other than the SOS
// prefix are appended after the structured fields.
func (e Emergency) Encode() string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString("|ID=")
	b.WriteString(e.DeviceID)
	b.WriteString("|LAT=")
	b.WriteString(strconv.FormatFloat(e.Lat, 'f', -1, 64))
	b.WriteString("|LON=")
	b.WriteString(strconv.FormatFloat(e.Lon, 'f', -1, 64))
	if e.Direction != "" {
		b.WriteString("|DIR=")
		b.WriteString(e.Direction)
	}
	b.WriteString("|TYPE=")
	b.WriteString(e.Type)
	b.WriteString("|TIME=")
	b.WriteString(e.Time)
	for _, f := range e.Flags {
		if f == Prefix {
			continue
		}
		b.WriteByte('|')
		b.WriteString(f)
	}
	return b.String()
}

type coordError string

func (e coordError) Error() string { return string(e) }

// parseCoord rejects NaN, infinities and out-of-range degrees so they
// degrade to the default instead of poisoning the distance computation.
func parseCoord(s string, limit float64) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != f || f > limit || f < -limit {
		return 0, coordError("coordinate out of range: " + s)
	}
	return f, nil
}
