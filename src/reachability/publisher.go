package reachability

import (
	"sync/atomic"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// Observer receives published statuses on the delivery queue.
type Observer func(status Status)

// Subscription identifies one registered observer. The zero value is never
// handed out.
type Subscription uint64

// Publisher broadcasts statuses to its observers. Each Monitor owns one, so
// monitors never see each other's events.
type Publisher struct {
	queue       dispatch.Queue
	subscribers *xsync.MapOf[Subscription, Observer]
	nextID      atomic.Uint64
	logger      *logrus.Entry
}

// NewPublisher creates a publisher that delivers on queue.
func NewPublisher(queue dispatch.Queue, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logger
	}
	return &Publisher{
		queue:       queue,
		subscribers: xsync.NewMapOf[Subscription, Observer](),
		logger:      log,
	}
}

// Subscribe registers o. A nil observer is ignored and yields the zero
// Subscription.
func (p *Publisher) Subscribe(o Observer) Subscription {
	if o == nil {
		return 0
	}
	id := Subscription(p.nextID.Add(1))
	p.subscribers.Store(id, o)
	return id
}

// Unsubscribe removes the observer registered under s. Removing an unknown
// or already removed subscription does nothing. A broadcast that has not
// reached the observer yet skips it.
func (p *Publisher) Unsubscribe(s Subscription) {
	p.subscribers.Delete(s)
}

// Len returns the number of registered observers.
func (p *Publisher) Len() int {
	return p.subscribers.Size()
}

// Publish schedules delivery of status to every observer. It reports false
// when the delivery queue is closed.
func (p *Publisher) Publish(status Status) bool {
	return p.publish(status, nil)
}

// publish schedules a broadcast that is dropped if valid reports false by
// the time the delivery queue runs it.
func (p *Publisher) publish(status Status, valid func() bool) bool {
	ok := p.queue.Async(func() {
		if valid != nil && !valid() {
			p.logger.WithField("status", status.Key()).Debug("Dropping status from a stopped watch")
			return
		}
		p.broadcast(status, valid)
	})
	if !ok {
		p.logger.WithField("status", status.Key()).Warn("Delivery queue closed, status not published")
	}
	return ok
}

func (p *Publisher) broadcast(status Status, valid func() bool) {
	p.subscribers.Range(func(id Subscription, o Observer) bool {
		// A watch stopped by an earlier observer ends the broadcast.
		if valid != nil && !valid() {
			return false
		}
		// Observers removed after the range started are skipped.
		if _, ok := p.subscribers.Load(id); !ok {
			return true
		}
		p.deliver(id, o, status)
		return true
	})
}

func (p *Publisher) deliver(id Subscription, o Observer, status Status) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"subscription": uint64(id),
				"status":       status.Key(),
				"panic":        r,
			}).Error("Observer panicked")
		}
	}()
	o(status)
}
