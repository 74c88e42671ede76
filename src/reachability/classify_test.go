package reachability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingLookup struct {
	tech  RadioTechnology
	calls int
}

func (l *countingLookup) CurrentRadioTechnology() RadioTechnology {
	l.calls++
	return l.tech
}

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name   string
		flags  FlagSet
		mobile bool
		tech   RadioTechnology
		want   Status
	}{
		{"empty", 0, false, RadioNone, NotReachable},
		{"empty on mobile", 0, true, RadioLTE, NotReachable},
		{"cellular bit without reachable", IsCellular, true, RadioLTE, NotReachable},
		{"reachable", Reachable, false, RadioNone, WiFi},
		{"reachable direct", Reachable | IsDirect, false, RadioNone, WiFi},
		{"reachable on mobile without cellular bit", Reachable, true, RadioLTE, WiFi},
		{"connection required alone", Reachable | ConnectionRequired, false, RadioNone, WiFi},
		{"transient alone", Reachable | TransientConnection, false, RadioNone, WiFi},
		{"required and transient", Reachable | ConnectionRequired | TransientConnection, false, RadioNone, NotReachable},
		{"required and transient on cellular", Reachable | ConnectionRequired | TransientConnection | IsCellular, true, RadioLTE, NotReachable},
		{"cellular not mobile", Reachable | IsCellular, false, RadioLTE, WiFi},
		{"cellular direct not mobile", Reachable | IsCellular | IsDirect, false, RadioNone, WiFi},
		{"cellular not mobile still vetoed", Reachable | IsCellular | ConnectionRequired | TransientConnection, false, RadioLTE, NotReachable},
		{"gprs", Reachable | IsCellular, true, RadioGPRS, Cellular2G},
		{"edge", Reachable | IsCellular, true, RadioEdge, Cellular2G},
		{"cdma1x", Reachable | IsCellular, true, RadioCDMA1x, Cellular2G},
		{"wcdma", Reachable | IsCellular, true, RadioWCDMA, Cellular3G},
		{"hsdpa", Reachable | IsCellular, true, RadioHSDPA, Cellular3G},
		{"hsupa", Reachable | IsCellular, true, RadioHSUPA, Cellular3G},
		{"evdo rev0", Reachable | IsCellular, true, RadioCDMAEVDORev0, Cellular3G},
		{"evdo revA", Reachable | IsCellular, true, RadioCDMAEVDORevA, Cellular3G},
		{"evdo revB", Reachable | IsCellular, true, RadioCDMAEVDORevB, Cellular3G},
		{"ehrpd", Reachable | IsCellular, true, RadioEHRPD, Cellular3G},
		{"lte", Reachable | IsCellular, true, RadioLTE, Cellular4G},
		{"no radio", Reachable | IsCellular, true, RadioNone, Unknown},
		{"unrecognised radio", Reachable | IsCellular, true, RadioTechnology(99), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &countingLookup{tech: tt.tech}
			assert.Equal(t, tt.want, Classify(tt.flags, tt.mobile, lookup))
		})
	}
}

func TestClassifyConsultsRadioOnlyForMobileCellular(t *testing.T) {
	lookup := &countingLookup{tech: RadioLTE}

	Classify(0, true, lookup)
	Classify(Reachable, true, lookup)
	assert.Equal(t, WiFi, Classify(Reachable|IsCellular, false, lookup))
	assert.Equal(t, 0, lookup.calls)

	Classify(Reachable|IsCellular, true, lookup)
	assert.Equal(t, 1, lookup.calls)
}

func TestClassifyNilLookup(t *testing.T) {
	assert.Equal(t, Unknown, Classify(Reachable|IsCellular, true, nil))
	assert.Equal(t, WiFi, Classify(Reachable, true, nil))
}

func TestClassifyIsDeterministic(t *testing.T) {
	lookup := RadioLookupFunc(func() RadioTechnology { return RadioHSDPA })
	for flags := FlagSet(0); flags < 1<<6; flags++ {
		for _, extra := range []FlagSet{0, IsCellular, IsDirect, IsLocalAddress} {
			f := flags | extra
			first := Classify(f, true, lookup)
			assert.Equal(t, first, Classify(f, true, lookup), "flags %s", f)
		}
	}
}

func TestFlagSetString(t *testing.T) {
	assert.Equal(t, "-- -------", FlagSet(0).String())
	assert.Equal(t, "-R -------", Reachable.String())
	assert.Equal(t, "WR t------", (IsCellular | Reachable | TransientConnection).String())
	assert.Equal(t, "-R -c---ld", (Reachable | ConnectionRequired | IsLocalAddress | IsDirect).String())
}

func TestFlagSetContains(t *testing.T) {
	f := Reachable | IsDirect
	assert.True(t, f.Contains(Reachable))
	assert.True(t, f.Contains(Reachable|IsDirect))
	assert.False(t, f.Contains(Reachable|IsCellular))
	assert.True(t, f.Contains(0))
}

func TestStatusKeysRoundTrip(t *testing.T) {
	for _, s := range []Status{NotReachable, Unknown, WiFi, Cellular2G, Cellular3G, Cellular4G} {
		parsed, err := ParseStatus(s.Key())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("5g")
	assert.Error(t, err)

	_, err = Status(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Status(42)", Status(42).String())
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "No connection", NotReachable.String())
	assert.Equal(t, "WiFi network", WiFi.String())
	assert.Equal(t, "4G cellular network", Cellular4G.String())
	assert.True(t, Cellular3G.IsCellular())
	assert.False(t, WiFi.IsCellular())
	assert.False(t, Unknown.IsCellular())
}

func TestParseRadioTechnology(t *testing.T) {
	tech, ok := ParseRadioTechnology(" LTE ")
	assert.True(t, ok)
	assert.Equal(t, RadioLTE, tech)

	tech, ok = ParseRadioTechnology("evdo-revb")
	assert.True(t, ok)
	assert.Equal(t, RadioCDMAEVDORevB, tech)

	_, ok = ParseRadioTechnology("5gnr")
	assert.False(t, ok)
	assert.Equal(t, "unrecognized", RadioTechnology(-1).String())
}

func TestEnumZeroValues(t *testing.T) {
	var status Status
	var tech RadioTechnology
	assert.Equal(t, NotReachable, status)
	assert.Equal(t, RadioNone, tech)
	assert.Equal(t, "none", tech.String())
}
