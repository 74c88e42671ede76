package reachability

import "strings"

// FlagSet is a snapshot of the connectivity signal for one target. Values
// are never modified after capture, only replaced.
type FlagSet uint32

// Named bits. The layout follows the reachability flag word used by the
// SystemConfiguration framework.
const (
	// TransientConnection marks a path over a link that comes and goes,
	// such as a PPP session.
	TransientConnection FlagSet = 1 << 0
	// Reachable means a route to the target exists right now.
	Reachable FlagSet = 1 << 1
	// ConnectionRequired means the path exists but must be brought up
	// first.
	ConnectionRequired FlagSet = 1 << 2
	// ConnectionOnTraffic means any traffic to the target brings the
	// connection up.
	ConnectionOnTraffic FlagSet = 1 << 3
	// InterventionRequired means user action (credentials, captive login)
	// is needed before the path is usable.
	InterventionRequired FlagSet = 1 << 4
	// ConnectionOnDemand means the connection is established on demand by
	// the system.
	ConnectionOnDemand FlagSet = 1 << 5
	// IsLocalAddress means the target is an address of this host.
	IsLocalAddress FlagSet = 1 << 16
	// IsDirect means the target is on-link, no gateway involved.
	IsDirect FlagSet = 1 << 17
	// IsCellular means the path runs over a mobile radio rather than
	// Wi-Fi or Ethernet.
	IsCellular FlagSet = 1 << 18
)

// Contains reports whether every bit of mask is set.
func (f FlagSet) Contains(mask FlagSet) bool {
	return f&mask == mask
}

// String renders the flags in the compact form used by reachability
// tooling, e.g. "WR t------" for a reachable transient cellular path.
func (f FlagSet) String() string {
	var b strings.Builder
	b.Grow(10)

	mark := func(bit FlagSet, c byte) {
		if f&bit != 0 {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}

	mark(IsCellular, 'W')
	mark(Reachable, 'R')
	b.WriteByte(' ')
	mark(TransientConnection, 't')
	mark(ConnectionRequired, 'c')
	mark(ConnectionOnTraffic, 'C')
	mark(InterventionRequired, 'i')
	mark(ConnectionOnDemand, 'D')
	mark(IsLocalAddress, 'l')
	mark(IsDirect, 'd')

	return b.String()
}
