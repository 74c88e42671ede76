// Package reachabilitytest provides an in-memory reachability facility for
// tests. Targets are driven by hand: tests set flags and emit change events.
package reachabilitytest

import (
	"errors"
	"net/netip"
	"sync"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
)

// ErrInjected is the default error used by the Fail* helpers.
var ErrInjected = errors.New("injected failure")

// Calls counts the registration calls a Target received.
type Calls struct {
	SetCallback   int
	SetQueue      int
	ClearCallback int
	ClearQueue    int
}

// Target is a scriptable reachability.Target.
type Target struct {
	mu       sync.Mutex
	name     string
	flags    reachability.FlagSet
	flagsErr error
	callback reachability.ChangeFunc
	queue    dispatch.Queue
	closed   bool
	calls    Calls

	setCallbackErr error
	setQueueErr    error
	clearErr       error
}

// NewTarget creates a target that reports flags.
func NewTarget(name string, flags reachability.FlagSet) *Target {
	return &Target{name: name, flags: flags}
}

func (t *Target) String() string { return t.name }

func (t *Target) Flags() (reachability.FlagSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flagsErr != nil {
		return 0, t.flagsErr
	}
	return t.flags, nil
}

func (t *Target) SetCallback(fn reachability.ChangeFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls.SetCallback++
	if t.setCallbackErr != nil {
		return t.setCallbackErr
	}
	t.callback = fn
	return nil
}

func (t *Target) SetQueue(q dispatch.Queue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls.SetQueue++
	if t.setQueueErr != nil {
		return t.setQueueErr
	}
	t.queue = q
	return nil
}

func (t *Target) ClearCallback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls.ClearCallback++
	t.callback = nil
	return t.clearErr
}

func (t *Target) ClearQueue() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls.ClearQueue++
	t.queue = nil
	return t.clearErr
}

func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.callback = nil
	t.queue = nil
	return nil
}

// SetFlags replaces the current flags without emitting a change.
func (t *Target) SetFlags(flags reachability.FlagSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flags = flags
	t.flagsErr = nil
}

// FailFlags makes Flags return err until the next SetFlags.
func (t *Target) FailFlags(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flagsErr = err
}

// FailSetCallback makes SetCallback fail with err; nil restores it.
func (t *Target) FailSetCallback(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setCallbackErr = err
}

// FailSetQueue makes SetQueue fail with err; nil restores it.
func (t *Target) FailSetQueue(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setQueueErr = err
}

// FailClear makes ClearCallback and ClearQueue report err. They still
// clear the registration.
func (t *Target) FailClear(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearErr = err
}

// Update emits a change to flags. When a callback and a queue are
// registered, the flags become current on the queue right before the
// callback runs, the way a facility applies changes in order. Otherwise the
// flags are replaced silently and Update reports false.
func (t *Target) Update(flags reachability.FlagSet) bool {
	t.mu.Lock()
	cb, q := t.callback, t.queue
	if cb == nil || q == nil {
		t.flags = flags
		t.flagsErr = nil
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	return q.Async(func() {
		t.SetFlags(flags)
		cb(flags)
	})
}

// Fire emits a change with the current flags, even if they did not change.
// It bypasses the registration and is used to simulate a late event from
// the facility.
func (t *Target) Fire(cb reachability.ChangeFunc, q dispatch.Queue) bool {
	flags, _ := t.Flags()
	return q.Async(func() { cb(flags) })
}

// Registration returns the callback and queue currently registered.
func (t *Target) Registration() (reachability.ChangeFunc, dispatch.Queue) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.callback, t.queue
}

// Registered reports whether both a callback and a queue are set.
func (t *Target) Registered() bool {
	cb, q := t.Registration()
	return cb != nil && q != nil
}

// Calls returns the registration call counters.
func (t *Target) Calls() Calls {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

// Closed reports whether Close was called.
func (t *Target) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

// Facility hands out Targets and remembers them by name.
type Facility struct {
	mu          sync.Mutex
	targets     map[string]*Target
	flags       reachability.FlagSet
	hostnameErr error
	addressErr  error
	created     []string
}

// NewFacility creates a facility whose new targets report flags.
func NewFacility(flags reachability.FlagSet) *Facility {
	return &Facility{
		targets: make(map[string]*Target),
		flags:   flags,
	}
}

// FailHostnames makes TargetWithHostname fail with err; nil restores it.
func (f *Facility) FailHostnames(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hostnameErr = err
}

// FailAddresses makes TargetWithAddress fail with err; nil restores it.
func (f *Facility) FailAddresses(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addressErr = err
}

func (f *Facility) TargetWithHostname(hostname string) (reachability.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hostnameErr != nil {
		return nil, f.hostnameErr
	}
	return f.add(hostname), nil
}

func (f *Facility) TargetWithAddress(addr netip.Addr) (reachability.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addressErr != nil {
		return nil, f.addressErr
	}
	return f.add(addr.String()), nil
}

func (f *Facility) add(name string) *Target {
	t := NewTarget(name, f.flags)
	f.targets[name] = t
	f.created = append(f.created, name)
	return t
}

// Target returns the most recent target created for name.
func (f *Facility) Target(name string) *Target {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.targets[name]
}

// Created lists target names in creation order.
func (f *Facility) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.created...)
}

var (
	_ reachability.Target   = (*Target)(nil)
	_ reachability.Facility = (*Facility)(nil)
)
