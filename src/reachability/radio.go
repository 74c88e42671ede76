package reachability

import "strings"

// RadioTechnology identifies the cellular radio access technology in use.
type RadioTechnology int

// Radio access technologies a RadioLookup can report. RadioNone means no
// modem is attached or it is not registered.
const (
	RadioNone RadioTechnology = iota

	// 2G
	RadioGPRS
	RadioEdge
	RadioCDMA1x

	// 3G
	RadioWCDMA
	RadioHSDPA
	RadioHSUPA
	RadioCDMAEVDORev0
	RadioCDMAEVDORevA
	RadioCDMAEVDORevB
	RadioEHRPD

	// 4G
	RadioLTE
)

var radioNames = map[RadioTechnology]string{
	RadioNone:         "none",
	RadioGPRS:         "gprs",
	RadioEdge:         "edge",
	RadioCDMA1x:       "cdma1x",
	RadioWCDMA:        "wcdma",
	RadioHSDPA:        "hsdpa",
	RadioHSUPA:        "hsupa",
	RadioCDMAEVDORev0: "evdo-rev0",
	RadioCDMAEVDORevA: "evdo-reva",
	RadioCDMAEVDORevB: "evdo-revb",
	RadioEHRPD:        "ehrpd",
	RadioLTE:          "lte",
}

func (r RadioTechnology) String() string {
	if name, ok := radioNames[r]; ok {
		return name
	}
	return "unrecognized"
}

// ParseRadioTechnology accepts the names produced by String, case
// insensitively. Anything else reports false.
func ParseRadioTechnology(name string) (RadioTechnology, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for r, n := range radioNames {
		if n == name {
			return r, true
		}
	}
	return RadioNone, false
}

// RadioLookup reports the radio technology currently active on the
// cellular modem, or RadioNone.
type RadioLookup interface {
	CurrentRadioTechnology() RadioTechnology
}

// RadioLookupFunc adapts a function to RadioLookup.
type RadioLookupFunc func() RadioTechnology

func (f RadioLookupFunc) CurrentRadioTechnology() RadioTechnology {
	return f()
}
