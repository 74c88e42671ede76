// Package dispatch provides serial work queues.
//
// A Queue runs the work items handed to it one at a time, in the order they
// were submitted. SerialQueue owns a goroutine that drains it; Loop is
// drained by whichever goroutine calls Run, which makes it usable as the
// application's main loop.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "dispatch")

// Queue accepts work for serial, in-order execution.
type Queue interface {
	// Async enqueues work and returns immediately. It reports false if the
	// queue no longer accepts work.
	Async(work func()) bool
}

// fifo is an unbounded, ordered backlog of work items. Producers never
// block on a slow consumer.
type fifo struct {
	label  string
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
}

func newFIFO(label string) *fifo {
	return &fifo{
		label:  label,
		signal: make(chan struct{}, 1),
	}
}

func (f *fifo) push(work func()) bool {
	if work == nil {
		return false
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.items = append(f.items, work)
	f.mu.Unlock()

	f.wake()
	return true
}

func (f *fifo) wake() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// pop returns the next item. ok is false once the fifo is closed and empty.
// more is false when nothing was queued and the caller should wait.
func (f *fifo) pop() (work func(), more bool, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return nil, false, !f.closed
	}
	work = f.items[0]
	f.items[0] = nil
	f.items = f.items[1:]
	return work, true, true
}

func (f *fifo) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wake()
}

func (f *fifo) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// execute runs one work item, containing any panic so the queue keeps
// serving later items.
func (f *fifo) execute(work func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"queue": f.label,
				"panic": r,
			}).Error("Work item panicked")
		}
	}()
	work()
}
