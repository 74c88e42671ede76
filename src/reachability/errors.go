package reachability

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrCreateWithAddress is returned when the facility cannot create a
	// target for an address.
	ErrCreateWithAddress = errors.New("failed to create target from address")
	// ErrCreateWithHostname is returned when the facility cannot create a
	// target for a hostname.
	ErrCreateWithHostname = errors.New("failed to create target from hostname")

	// ErrUnableToSetCallback is returned by StartWatching when the change
	// callback could not be registered with the target.
	ErrUnableToSetCallback = errors.New("unable to register callback")
	// ErrUnableToSetQueue is returned by StartWatching when the worker
	// queue could not be bound to the target.
	ErrUnableToSetQueue = errors.New("unable to bind delivery context")

	// ErrClosed is returned by operations on a closed Monitor.
	ErrClosed = errors.New("monitor is closed")
)

// InitError describes a failed target construction. It matches
// ErrCreateWithAddress or ErrCreateWithHostname with errors.Is, and the
// facility's own error when there is one.
type InitError struct {
	Kind     error
	Hostname string
	Address  netip.Addr
	Cause    error
}

func (e *InitError) Error() string {
	var subject string
	if e.Kind == ErrCreateWithHostname {
		subject = fmt.Sprintf("%s %q", e.Kind, e.Hostname)
	} else {
		subject = fmt.Sprintf("%s %s", e.Kind, e.Address)
	}
	if e.Cause != nil {
		return subject + ": " + e.Cause.Error()
	}
	return subject
}

func (e *InitError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsStartError reports whether err came from a failed StartWatching. Such
// failures leave the monitor idle and may be retried.
func IsStartError(err error) bool {
	return errors.Is(err, ErrUnableToSetCallback) || errors.Is(err, ErrUnableToSetQueue)
}

// IsInitError reports whether err came from a failed target construction.
func IsInitError(err error) bool {
	return errors.Is(err, ErrCreateWithAddress) || errors.Is(err, ErrCreateWithHostname)
}
