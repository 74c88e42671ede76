//go:build !linux
// +build !linux

package netwatch

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
)

const pollInterval = 5 * time.Second

// pollingSystem approximates route lookups from the interface list. It has
// no routing table, so it never reports a gateway or a cellular path.
type pollingSystem struct {
	rules interfaceRules
}

func newSystem(cfg config_manager.NetwatchConfig) system {
	return &pollingSystem{rules: newInterfaceRules(cfg)}
}

func (s *pollingSystem) routeFlags(dst netip.Addr) (reachability.FlagSet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, err
	}

	var best reachability.FlagSet
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			prefix, ok := toPrefix(a)
			if !ok || prefix.Addr().Is4() != dst.Is4() {
				continue
			}

			p := path{
				ifName:       iface.Name,
				up:           iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0,
				pointToPoint: iface.Flags&net.FlagPointToPoint != 0,
				local:        prefix.Addr() == dst,
			}
			switch {
			case p.local, !dst.IsUnspecified() && prefix.Contains(dst):
			default:
				// Off-link: assume a router behind any global address.
				if iface.Flags&net.FlagLoopback != 0 || !prefix.Addr().IsGlobalUnicast() {
					continue
				}
				p.gateway = true
			}

			if flags := s.rules.flags(p); rank(flags) > rank(best) {
				best = flags
			}
		}
	}
	return best, nil
}

func rank(f reachability.FlagSet) int {
	switch {
	case f.Contains(reachability.IsLocalAddress):
		return 3
	case f.Contains(reachability.Reachable | reachability.IsDirect):
		return 2
	case f.Contains(reachability.Reachable):
		return 1
	}
	return 0
}

func toPrefix(a net.Addr) (netip.Prefix, bool) {
	ipnet, ok := a.(*net.IPNet)
	if !ok {
		return netip.Prefix{}, false
	}
	addr, ok := netip.AddrFromSlice(ipnet.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	ones, _ := ipnet.Mask.Size()
	return netip.PrefixFrom(addr.Unmap(), ones), true
}

func (s *pollingSystem) linkNames() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return names, nil
}

func (s *pollingSystem) watch(ctx context.Context, changed func()) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed()
		}
	}
}
