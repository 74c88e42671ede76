package reachability

import (
	"net/netip"
	"sync"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/sirupsen/logrus"
)

// Monitor reports the reachability status of one target and, while
// watching, publishes every change to its observers.
type Monitor struct {
	mu       sync.RWMutex
	target   Target
	closed   bool
	name     string
	mobile   bool
	radio    RadioLookup
	logger   *logrus.Entry
	worker   *dispatch.SerialQueue
	delivery *dispatch.SerialQueue // owned delivery queue, nil if supplied by the caller

	publisher *Publisher
	notifier  *notifier
}

type options struct {
	mobile   bool
	radio    RadioLookup
	delivery dispatch.Queue
	logger   *logrus.Entry
	name     string
}

// Option configures a Monitor.
type Option func(*options)

// WithMobileDevice declares whether the host can be on a mobile radio.
// Only a mobile device consults the radio lookup. On any other device a
// usable path classifies as WiFi, cellular or not.
func WithMobileDevice(mobile bool) Option {
	return func(o *options) { o.mobile = mobile }
}

// WithRadioLookup sets the source of the current radio technology.
func WithRadioLookup(lookup RadioLookup) Option {
	return func(o *options) { o.radio = lookup }
}

// WithDeliveryQueue sets the queue observers are called on. Without it the
// monitor creates and owns a serial queue.
func WithDeliveryQueue(q dispatch.Queue) Option {
	return func(o *options) { o.delivery = q }
}

// WithLogger replaces the module logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithName labels the monitor in logs. Defaults to the target's String.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New creates a Monitor that owns target. Closing the monitor closes the
// target.
func New(target Target, opts ...Option) *Monitor {
	o := options{logger: logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = target.String()
	}

	m := &Monitor{
		target: target,
		name:   o.name,
		mobile: o.mobile,
		radio:  o.radio,
		logger: o.logger.WithField("monitor", o.name),
		worker: dispatch.NewSerialQueue("reachability-worker:" + o.name),
	}

	delivery := o.delivery
	if delivery == nil {
		m.delivery = dispatch.NewSerialQueue("reachability-delivery:" + o.name)
		delivery = m.delivery
	}

	m.publisher = NewPublisher(delivery, m.logger)
	m.notifier = newNotifier(target, m.worker, m.publisher, m.classify, m.logger)
	return m
}

// NewWithHostname creates a Monitor for hostname.
func NewWithHostname(f Facility, hostname string, opts ...Option) (*Monitor, error) {
	t, err := NewTargetWithHostname(f, hostname)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// NewWithAddress creates a Monitor for addr.
func NewWithAddress(f Facility, addr netip.Addr, opts ...Option) (*Monitor, error) {
	t, err := NewTargetWithAddress(f, addr)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// NewDefaultRoute creates a Monitor for the wildcard address, which is
// reachable whenever the host has any usable route.
func NewDefaultRoute(f Facility, opts ...Option) (*Monitor, error) {
	return NewWithAddress(f, DefaultRouteAddress, opts...)
}

// Name returns the monitor's label.
func (m *Monitor) Name() string {
	return m.name
}

// Target describes the watched destination.
func (m *Monitor) Target() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.target == nil {
		return ""
	}
	return m.target.String()
}

// MobileDevice reports the mobile-device setting.
func (m *Monitor) MobileDevice() bool {
	return m.mobile
}

// CurrentFlags reads the target's flags.
func (m *Monitor) CurrentFlags() (FlagSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.target == nil {
		return 0, ErrClosed
	}
	return m.target.Flags()
}

// CurrentStatus reads and classifies the flags now. A failed read counts
// as NotReachable, as does a closed monitor.
func (m *Monitor) CurrentStatus() Status {
	flags, err := m.CurrentFlags()
	if err != nil {
		m.logger.WithError(err).Debug("Could not read reachability flags")
		return NotReachable
	}
	return m.classify(flags)
}

func (m *Monitor) classify(flags FlagSet) Status {
	return Classify(flags, m.mobile, m.radio)
}

// StartWatching begins publishing changes. Calling it while already
// watching does nothing. On failure the monitor is left not watching and
// the call may be retried.
func (m *Monitor) StartWatching() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := m.notifier.start(); err != nil {
		m.logger.WithError(err).Warn("Failed to start watching")
		return err
	}
	return nil
}

// StopWatching stops publishing changes. It is always safe to call.
func (m *Monitor) StopWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifier.stop()
}

// IsWatching reports whether the notifier is running.
func (m *Monitor) IsWatching() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.notifier.running()
}

// Subscribe registers o for every status published while watching. Past
// statuses are not replayed.
func (m *Monitor) Subscribe(o Observer) Subscription {
	return m.publisher.Subscribe(o)
}

// Unsubscribe removes exactly the observer registered under s.
func (m *Monitor) Unsubscribe(s Subscription) {
	m.publisher.Unsubscribe(s)
}

// Close stops watching, releases the target and shuts the internal queues
// down. The registration is always removed before the target is released.
// No broadcast starts once Close has returned. Close is idempotent and may
// be called from an observer.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.notifier.stop()
	target := m.target
	m.target = nil
	m.mu.Unlock()

	// Events still queued see a stopped generation and return early. The
	// worker never runs observer code.
	m.worker.Close()
	err := target.Close()

	// Observers run on the delivery queue and may be the caller here, so it
	// is only told to stop. Its backlog is dropped by the generation check.
	if m.delivery != nil {
		m.delivery.Shutdown()
	}

	m.logger.Debug("Monitor closed")
	return err
}
