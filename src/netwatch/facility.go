// Package netwatch is the reachability facility for the host's own network
// stack. On Linux it reads the kernel routing table over netlink and
// subscribes to route, link and address changes; elsewhere it polls the
// interface list.
package netwatch

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
)

// system is the platform half of the facility.
type system interface {
	// routeFlags derives flags for the path to dst. The unspecified address
	// asks for the best default route of its family.
	routeFlags(dst netip.Addr) (reachability.FlagSet, error)
	// watch calls changed whenever the routing state may have changed,
	// until ctx is done.
	watch(ctx context.Context, changed func()) error
	// linkNames lists the host's interfaces.
	linkNames() ([]string, error)
}

// Facility creates targets backed by the host network stack.
type Facility struct {
	rules    interfaceRules
	sys      system
	resolver *resolver
	settle   time.Duration

	uciCellular []string
}

// NewFacility creates a facility for the current platform.
func NewFacility(cfg config_manager.NetwatchConfig) *Facility {
	cfg, uciCellular := withUCI(cfg)

	f := newFacility(cfg, newSystem(cfg))
	f.uciCellular = uciCellular
	return f
}

func newFacility(cfg config_manager.NetwatchConfig, sys system) *Facility {
	return &Facility{
		rules:    newInterfaceRules(cfg),
		sys:      sys,
		resolver: newResolver(cfg.DNSServer, cfg.ResolveTimeout.Std()),
		settle:   cfg.SettleTime.Std(),
	}
}

// TargetWithHostname creates a target that follows the addresses hostname
// resolves to. Resolution happens on first use and again after each
// network change, not here.
func (f *Facility) TargetWithHostname(hostname string) (reachability.Target, error) {
	if _, err := netip.ParseAddr(hostname); err != nil && !validHostname(hostname) {
		return nil, fmt.Errorf("invalid hostname %q", hostname)
	}
	return newTarget(f, hostname, netip.Addr{}), nil
}

// TargetWithAddress creates a target for a fixed address. The unspecified
// address tracks the default route.
func (f *Facility) TargetWithAddress(addr netip.Addr) (reachability.Target, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("invalid address")
	}
	return newTarget(f, "", addr.Unmap()), nil
}

// DetectMobileDevice reports whether the host has an interface that looks
// like a cellular modem, or declares one in its UCI network config.
func (f *Facility) DetectMobileDevice() (bool, error) {
	if len(f.uciCellular) > 0 {
		return true, nil
	}

	names, err := f.sys.linkNames()
	if err != nil {
		return false, fmt.Errorf("failed to list interfaces: %w", err)
	}
	return f.rules.anyCellular(names), nil
}

var _ reachability.Facility = (*Facility)(nil)
