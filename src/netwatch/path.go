package netwatch

import (
	"strings"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
)

// path is the kernel's answer to "how would a packet to this destination
// leave the host", reduced to what the flags are derived from.
type path struct {
	ifName       string
	up           bool // carrier and admin state both usable
	dormant      bool // carrier present, link waiting on authentication or dial
	pointToPoint bool
	local        bool // destination is an address of this host
	gateway      bool // next hop is a router, not the destination itself
}

// interfaceRules classifies interfaces by name.
type interfaceRules struct {
	ignore    []string
	cellular  []string
	transient []string
}

func newInterfaceRules(cfg config_manager.NetwatchConfig) interfaceRules {
	return interfaceRules{
		ignore:    cfg.IgnoreInterfaces,
		cellular:  cfg.CellularInterfaces,
		transient: cfg.TransientInterfaces,
	}
}

func (r interfaceRules) ignored(name string) bool {
	for _, ignored := range r.ignore {
		if name == ignored {
			return true
		}
	}
	return false
}

func (r interfaceRules) isCellular(name string) bool {
	return hasAnyPrefix(name, r.cellular)
}

func (r interfaceRules) isTransient(name string) bool {
	return hasAnyPrefix(name, r.transient)
}

// flags derives the reachability flags for one path.
func (r interfaceRules) flags(p path) reachability.FlagSet {
	if p.local {
		return reachability.Reachable | reachability.IsLocalAddress | reachability.IsDirect
	}
	if p.ifName == "" || r.ignored(p.ifName) {
		return 0
	}
	if !p.up && !p.dormant {
		return 0
	}

	f := reachability.Reachable
	if p.dormant {
		f |= reachability.ConnectionRequired
	}
	if p.pointToPoint || r.isTransient(p.ifName) {
		f |= reachability.TransientConnection
	}
	if r.isCellular(p.ifName) {
		f |= reachability.IsCellular
	}
	if !p.gateway {
		f |= reachability.IsDirect
	}
	return f
}

// anyCellular reports whether any of names looks like a modem interface.
func (r interfaceRules) anyCellular(names []string) bool {
	for _, name := range names {
		if r.isCellular(name) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
