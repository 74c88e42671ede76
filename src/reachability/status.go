package reachability

import "fmt"

// Status is the semantic reading of a FlagSet.
type Status int

// Statuses a FlagSet can classify as. The zero value is NotReachable.
const (
	// NotReachable means there is no usable path to the target.
	NotReachable Status = iota
	// Unknown is a cellular path whose radio generation could not be told.
	Unknown
	// WiFi is any usable path that is not a known cellular radio.
	WiFi
	// Cellular2G covers GPRS, EDGE and CDMA 1x.
	Cellular2G
	// Cellular3G covers the WCDMA, HSPA and EV-DO families.
	Cellular3G
	// Cellular4G is LTE.
	Cellular4G
)

var statusLabels = map[Status]string{
	NotReachable: "No connection",
	Unknown:      "Unknown connection",
	WiFi:         "WiFi network",
	Cellular2G:   "2G cellular network",
	Cellular3G:   "3G cellular network",
	Cellular4G:   "4G cellular network",
}

var statusKeys = map[Status]string{
	NotReachable: "not_reachable",
	Unknown:      "unknown",
	WiFi:         "wifi",
	Cellular2G:   "2g",
	Cellular3G:   "3g",
	Cellular4G:   "4g",
}

// String returns the human readable label.
func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Key returns the short machine name used in JSON and on the wire.
func (s Status) Key() string {
	if key, ok := statusKeys[s]; ok {
		return key
	}
	return fmt.Sprintf("status_%d", int(s))
}

// IsCellular reports whether s is one of the cellular generations.
func (s Status) IsCellular() bool {
	return s == Cellular2G || s == Cellular3G || s == Cellular4G
}

// ParseStatus maps a key produced by Key back to a Status.
func ParseStatus(key string) (Status, error) {
	for s, k := range statusKeys {
		if k == key {
			return s, nil
		}
	}
	return NotReachable, fmt.Errorf("unknown status %q", key)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusKeys[s]; !ok {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.Key()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
