package netwatch

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var errTargetClosed = errors.New("target is closed")

// target watches one destination. A watch runs only while both a callback
// and a queue are registered.
type target struct {
	facility *Facility
	hostname string
	addr     netip.Addr
	logger   *logrus.Entry

	mu       sync.Mutex
	callback reachability.ChangeFunc
	queue    dispatch.Queue
	current  *watch
	closed   bool

	addrMu   sync.Mutex
	resolved []netip.Addr
}

// watch is one subscription lifetime. Evaluations hold mu so flags are
// compared and delivered in order.
type watch struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	last   reachability.FlagSet
	primed bool
}

func (w *watch) wait() {
	if w != nil {
		<-w.done
	}
}

func newTarget(f *Facility, hostname string, addr netip.Addr) *target {
	t := &target{
		facility: f,
		hostname: hostname,
		addr:     addr,
	}
	t.logger = logger.WithField("target", t.String())
	return t
}

func (t *target) String() string {
	if t.hostname != "" {
		return t.hostname
	}
	return t.addr.String()
}

func (t *target) Flags() (reachability.FlagSet, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, errTargetClosed
	}

	addrs, err := t.destinations(false)
	if err != nil {
		return 0, err
	}
	return t.flagsFor(addrs)
}

// destinations returns the addresses to probe. Hostnames are resolved on
// first use and when refresh is set; a failed refresh keeps the previous
// answer.
func (t *target) destinations(refresh bool) ([]netip.Addr, error) {
	if t.hostname == "" {
		return []netip.Addr{t.addr}, nil
	}

	t.addrMu.Lock()
	defer t.addrMu.Unlock()

	if !refresh && len(t.resolved) > 0 {
		return t.resolved, nil
	}

	addrs, err := t.facility.resolver.resolve(context.Background(), t.hostname)
	if err != nil {
		if len(t.resolved) > 0 {
			t.logger.WithError(err).Debug("Resolution failed, keeping previous addresses")
			return t.resolved, nil
		}
		return nil, err
	}
	t.resolved = addrs
	return addrs, nil
}

// flagsFor returns the flags of the first reachable address, or zero.
func (t *target) flagsFor(addrs []netip.Addr) (reachability.FlagSet, error) {
	var errs error
	answered := false
	for _, addr := range addrs {
		flags, err := t.facility.sys.routeFlags(addr)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		answered = true
		if flags.Contains(reachability.Reachable) {
			return flags, nil
		}
	}
	if !answered && errs != nil {
		return 0, errs
	}
	return 0, nil
}

func (t *target) SetCallback(fn reachability.ChangeFunc) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTargetClosed
	}
	t.callback = fn
	stopped := t.reconcile()
	t.mu.Unlock()

	stopped.wait()
	return nil
}

func (t *target) SetQueue(q dispatch.Queue) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTargetClosed
	}
	t.queue = q
	stopped := t.reconcile()
	t.mu.Unlock()

	stopped.wait()
	return nil
}

func (t *target) ClearCallback() error {
	t.mu.Lock()
	t.callback = nil
	stopped := t.reconcile()
	t.mu.Unlock()

	stopped.wait()
	return nil
}

func (t *target) ClearQueue() error {
	t.mu.Lock()
	t.queue = nil
	stopped := t.reconcile()
	t.mu.Unlock()

	stopped.wait()
	return nil
}

func (t *target) Close() error {
	t.mu.Lock()
	t.closed = true
	t.callback = nil
	t.queue = nil
	stopped := t.reconcile()
	t.mu.Unlock()

	stopped.wait()
	return nil
}

// reconcile starts or stops the watch to match the registration. It must
// be called with mu held and returns a stopped watch for the caller to
// wait on after unlocking.
func (t *target) reconcile() *watch {
	registered := t.callback != nil && t.queue != nil
	switch {
	case registered && t.current == nil:
		t.startWatch()
	case !registered && t.current != nil:
		w := t.current
		t.current = nil
		w.cancel()
		t.logger.Debug("Stopped watching")
		return w
	}
	return nil
}

func (t *target) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{cancel: cancel, done: make(chan struct{})}
	t.current = w

	debounced := debounce.New(t.facility.settle)
	changed := func() {
		debounced(func() { t.evaluate(w, true) })
	}

	go func() {
		defer close(w.done)

		t.evaluate(w, false)
		if err := t.facility.sys.watch(ctx, changed); err != nil && ctx.Err() == nil {
			t.logger.WithError(err).Error("Stopped receiving network changes")
		}
	}()

	t.logger.Debug("Started watching")
}

func (t *target) isCurrent(w *watch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current == w
}

// evaluate re-reads the flags and, when they differ from the last reading,
// schedules the callback on the registered queue. The first reading of a
// watch only sets the baseline unless fire is set.
func (t *target) evaluate(w *watch, fire bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !t.isCurrent(w) {
		return
	}

	addrs, err := t.destinations(t.hostname != "")
	var flags reachability.FlagSet
	if err == nil {
		flags, err = t.flagsFor(addrs)
	}
	if err != nil {
		t.logger.WithError(err).Debug("Could not read flags, treating as unreachable")
		flags = 0
	}

	if w.primed && flags == w.last {
		return
	}
	baseline := !w.primed
	w.last, w.primed = flags, true
	if baseline && !fire {
		t.logger.WithField("flags", flags.String()).Debug("Baseline flags")
		return
	}

	t.mu.Lock()
	if t.current != w {
		t.mu.Unlock()
		return
	}
	cb, q := t.callback, t.queue
	t.mu.Unlock()

	t.logger.WithField("flags", flags.String()).Debug("Flags changed")
	if !q.Async(func() { cb(flags) }) {
		t.logger.Warn("Callback queue closed, change dropped")
	}
}

var _ reachability.Target = (*target)(nil)
