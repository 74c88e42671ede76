package reachability

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"syscall"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
)

// ChangeFunc receives the flags that triggered a change notification.
type ChangeFunc func(flags FlagSet)

// Target is a handle to one destination watched by the OS facility.
//
// The facility invokes the registered ChangeFunc on the bound queue, never
// directly, and only while both a callback and a queue are set.
type Target interface {
	// Flags reads the current flags.
	Flags() (FlagSet, error)
	// SetCallback registers the change callback, replacing any previous one.
	SetCallback(fn ChangeFunc) error
	// SetQueue binds the queue callbacks are scheduled on.
	SetQueue(q dispatch.Queue) error
	// ClearCallback removes the callback.
	ClearCallback() error
	// ClearQueue unbinds the queue and stops watching.
	ClearQueue() error
	// Close releases the handle.
	Close() error
	// String names the destination for logs.
	String() string
}

// Facility creates targets.
type Facility interface {
	TargetWithHostname(hostname string) (Target, error)
	TargetWithAddress(addr netip.Addr) (Target, error)
}

// DefaultRouteAddress is the zeroed IPv4 wildcard address. A target for it
// tracks whether any route out of the host exists.
var DefaultRouteAddress = netip.IPv4Unspecified()

// NewTargetWithHostname asks the facility for a hostname target and wraps
// failures in an InitError.
func NewTargetWithHostname(f Facility, hostname string) (Target, error) {
	t, err := f.TargetWithHostname(hostname)
	if err != nil || t == nil {
		return nil, &InitError{Kind: ErrCreateWithHostname, Hostname: hostname, Cause: err}
	}
	return t, nil
}

// NewTargetWithAddress asks the facility for an address target and wraps
// failures in an InitError.
func NewTargetWithAddress(f Facility, addr netip.Addr) (Target, error) {
	if !addr.IsValid() {
		return nil, &InitError{Kind: ErrCreateWithAddress, Address: addr, Cause: fmt.Errorf("invalid address")}
	}
	t, err := f.TargetWithAddress(addr)
	if err != nil || t == nil {
		return nil, &InitError{Kind: ErrCreateWithAddress, Address: addr, Cause: err}
	}
	return t, nil
}

// AddressFromSockaddr decodes a raw sockaddr_in or sockaddr_in6 in host
// layout (family in native byte order, address in network order).
func AddressFromSockaddr(raw []byte) (netip.Addr, error) {
	if len(raw) < 2 {
		return netip.Addr{}, fmt.Errorf("sockaddr too short: %d bytes", len(raw))
	}

	family := binary.NativeEndian.Uint16(raw[:2])
	switch family {
	case syscall.AF_INET:
		// family(2) port(2) addr(4)
		if len(raw) < 8 {
			return netip.Addr{}, fmt.Errorf("sockaddr_in too short: %d bytes", len(raw))
		}
		return netip.AddrFrom4([4]byte(raw[4:8])), nil
	case syscall.AF_INET6:
		// family(2) port(2) flowinfo(4) addr(16) scope(4)
		if len(raw) < 24 {
			return netip.Addr{}, fmt.Errorf("sockaddr_in6 too short: %d bytes", len(raw))
		}
		return netip.AddrFrom16([16]byte(raw[8:24])), nil
	default:
		return netip.Addr{}, fmt.Errorf("unsupported address family %d", family)
	}
}
