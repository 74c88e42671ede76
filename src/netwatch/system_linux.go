//go:build linux
// +build linux

package netwatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/cenkalti/backoff/v4"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// netlinkSystem answers route queries from the kernel and follows route,
// link and address changes through netlink subscriptions.
type netlinkSystem struct {
	rules      interfaceRules
	maxElapsed time.Duration
}

func newSystem(cfg config_manager.NetwatchConfig) system {
	return &netlinkSystem{
		rules:      newInterfaceRules(cfg),
		maxElapsed: cfg.ResubscribeMaxElapsed.Std(),
	}
}

func (s *netlinkSystem) routeFlags(dst netip.Addr) (reachability.FlagSet, error) {
	if dst.IsUnspecified() {
		return s.defaultRouteFlags(dst)
	}

	routes, err := netlink.RouteGet(net.IP(dst.AsSlice()))
	if err != nil {
		if errors.Is(err, unix.ENETUNREACH) || errors.Is(err, unix.EHOSTUNREACH) {
			return 0, nil
		}
		return 0, fmt.Errorf("route lookup for %s: %w", dst, err)
	}
	if len(routes) == 0 {
		return 0, nil
	}

	r := routes[0]
	p, err := s.pathFor(r)
	if err != nil {
		return 0, err
	}
	return s.rules.flags(p), nil
}

// defaultRouteFlags picks the usable default route with the lowest metric
// in the family of dst.
func (s *netlinkSystem) defaultRouteFlags(dst netip.Addr) (reachability.FlagSet, error) {
	family := netlink.FAMILY_V4
	if dst.Is6() {
		family = netlink.FAMILY_V6
	}

	routes, err := netlink.RouteList(nil, family)
	if err != nil {
		return 0, fmt.Errorf("failed to list routes: %w", err)
	}

	var best reachability.FlagSet
	bestPriority := -1
	for _, r := range routes {
		if !isDefaultRoute(r) {
			continue
		}
		p, err := s.pathFor(r)
		if err != nil {
			logger.WithError(err).WithField("link_index", r.LinkIndex).Debug("Skipping default route")
			continue
		}
		flags := s.rules.flags(p)
		if !flags.Contains(reachability.Reachable) {
			continue
		}
		if bestPriority < 0 || r.Priority < bestPriority {
			best, bestPriority = flags, r.Priority
		}
	}
	return best, nil
}

func isDefaultRoute(r netlink.Route) bool {
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0
}

func (s *netlinkSystem) pathFor(r netlink.Route) (path, error) {
	p := path{
		local:   r.Type == unix.RTN_LOCAL,
		gateway: r.Gw != nil && !r.Gw.IsUnspecified(),
	}
	if r.LinkIndex == 0 {
		return p, nil
	}

	link, err := netlink.LinkByIndex(r.LinkIndex)
	if err != nil {
		return p, fmt.Errorf("failed to get link %d: %w", r.LinkIndex, err)
	}
	attrs := link.Attrs()
	p.ifName = attrs.Name

	adminUp := attrs.Flags&net.FlagUp != 0
	switch attrs.OperState {
	case netlink.OperUp:
		p.up = adminUp
	case netlink.OperUnknown:
		// Many tun and ppp drivers never report an operational state.
		p.up = adminUp && attrs.RawFlags&unix.IFF_RUNNING != 0
	case netlink.OperDormant:
		p.dormant = adminUp
	}

	p.pointToPoint = attrs.Flags&net.FlagPointToPoint != 0 || attrs.EncapType == "ppp"
	return p, nil
}

func (s *netlinkSystem) linkNames() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(links))
	for _, link := range links {
		names = append(names, link.Attrs().Name)
	}
	return names, nil
}

// watch keeps the netlink subscriptions alive until ctx is done. A lost
// subscription is re-established with exponential backoff; the backoff
// starts over once a subscription is up again.
func (s *netlinkSystem) watch(ctx context.Context, changed func()) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.maxElapsed

	err := backoff.RetryNotify(func() error {
		return s.subscribe(ctx, changed, b.Reset)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.WithError(err).WithField("retry_in", next).Warn("Netlink subscription lost, resubscribing")
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// subscribe runs one set of subscriptions. It returns nil when ctx is done
// and an error when any subscription fails or ends.
func (s *netlinkSystem) subscribe(ctx context.Context, changed func(), established func()) error {
	done := make(chan struct{})
	routes := make(chan netlink.RouteUpdate, 16)
	links := make(chan netlink.LinkUpdate, 16)
	addrs := make(chan netlink.AddrUpdate, 16)
	failed := make(chan error, 3)
	onError := func(err error) {
		select {
		case failed <- err:
		default:
		}
	}

	// Every started subscription closes its channel once done is closed;
	// keep reading until then so none of them blocks on a send.
	var started []func()
	defer func() {
		close(done)
		for _, d := range started {
			go d()
		}
	}()

	if err := netlink.RouteSubscribeWithOptions(routes, done, netlink.RouteSubscribeOptions{ErrorCallback: onError}); err != nil {
		return fmt.Errorf("route subscription: %w", err)
	}
	started = append(started, func() { drain(routes) })

	if err := netlink.LinkSubscribeWithOptions(links, done, netlink.LinkSubscribeOptions{ErrorCallback: onError}); err != nil {
		return fmt.Errorf("link subscription: %w", err)
	}
	started = append(started, func() { drain(links) })

	if err := netlink.AddrSubscribeWithOptions(addrs, done, netlink.AddrSubscribeOptions{ErrorCallback: onError}); err != nil {
		return fmt.Errorf("address subscription: %w", err)
	}
	started = append(started, func() { drain(addrs) })

	established()

	// Anything that changed while we were not subscribed.
	changed()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		case u, ok := <-routes:
			if !ok {
				return errors.New("route subscription closed")
			}
			logger.WithField("dst", u.Dst).Trace("Route update")
			changed()
		case u, ok := <-links:
			if !ok {
				return errors.New("link subscription closed")
			}
			logger.WithField("link", u.Attrs().Name).Trace("Link update")
			changed()
		case u, ok := <-addrs:
			if !ok {
				return errors.New("address subscription closed")
			}
			logger.WithField("addr", u.LinkAddress.String()).Trace("Address update")
			changed()
		}
	}
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}
