package reachability

import (
	"fmt"
	"sync/atomic"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

type notifierState int

const (
	notifierIdle notifierState = iota
	notifierRunning
)

func (s notifierState) String() string {
	if s == notifierRunning {
		return "running"
	}
	return "idle"
}

// notifier owns the change registration on a target. Its state is only
// changed under the owning Monitor's write lock; change events read the
// active generation atomically so stale registrations can be told apart.
type notifier struct {
	target    Target
	worker    *dispatch.SerialQueue
	publisher *Publisher
	classify  func(FlagSet) Status
	logger    *logrus.Entry

	state      notifierState
	generation uint64
	active     atomic.Uint64
}

func newNotifier(target Target, worker *dispatch.SerialQueue, publisher *Publisher, classify func(FlagSet) Status, log *logrus.Entry) *notifier {
	return &notifier{
		target:    target,
		worker:    worker,
		publisher: publisher,
		classify:  classify,
		logger:    log,
	}
}

// start registers the callback, then binds the worker queue. On failure the
// registration is torn down again and the notifier stays idle.
func (n *notifier) start() error {
	if n.state == notifierRunning {
		return nil
	}

	n.generation++
	gen := n.generation
	n.state = notifierRunning
	n.active.Store(gen)

	if err := n.target.SetCallback(func(flags FlagSet) { n.handleChange(gen, flags) }); err != nil {
		n.stop()
		return fmt.Errorf("%w: %w", ErrUnableToSetCallback, err)
	}

	if err := n.target.SetQueue(n.worker); err != nil {
		n.stop()
		return fmt.Errorf("%w: %w", ErrUnableToSetQueue, err)
	}

	n.logger.WithField("target", n.target.String()).Debug("Notifier started")
	return nil
}

// stop unregisters unconditionally. Failures are logged and otherwise
// ignored: the notifier always ends idle.
func (n *notifier) stop() {
	if n.state == notifierIdle {
		return
	}

	n.active.Store(0)
	n.state = notifierIdle

	var errs error
	errs = multierr.Append(errs, n.target.ClearCallback())
	errs = multierr.Append(errs, n.target.ClearQueue())
	if errs != nil {
		n.logger.WithError(errs).WithField("target", n.target.String()).Debug("Notifier cleanup was incomplete")
		return
	}

	n.logger.WithField("target", n.target.String()).Debug("Notifier stopped")
}

func (n *notifier) running() bool {
	return n.state == notifierRunning
}

func (n *notifier) isCurrent(gen uint64) bool {
	return n.active.Load() == gen
}

// handleChange runs on the worker queue for every change the target
// reports. The flags are read again so the status reflects the target at
// classification time; the value read is the one logged and classified.
func (n *notifier) handleChange(gen uint64, reported FlagSet) {
	if !n.isCurrent(gen) {
		return
	}

	log := n.logger.WithField("target", n.target.String())

	status := NotReachable
	flags, err := n.target.Flags()
	if err != nil {
		log.WithError(err).WithField("reported", reported.String()).Debug("Could not read reachability flags")
	} else {
		status = n.classify(flags)
	}

	log.WithFields(logrus.Fields{
		"flags":  flags.String(),
		"status": status.Key(),
	}).Debug("Reachability changed")

	n.publisher.publish(status, func() bool { return n.isCurrent(gen) })
}
