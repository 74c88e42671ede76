package dispatch

// SerialQueue runs work items on its own goroutine.
type SerialQueue struct {
	fifo *fifo
	done chan struct{}
}

// NewSerialQueue creates a queue and starts its goroutine. The label only
// appears in logs.
func NewSerialQueue(label string) *SerialQueue {
	q := &SerialQueue{
		fifo: newFIFO(label),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Label returns the name the queue was created with.
func (q *SerialQueue) Label() string {
	return q.fifo.label
}

// Async enqueues work. It never blocks.
func (q *SerialQueue) Async(work func()) bool {
	return q.fifo.push(work)
}

// Sync enqueues work and waits for it to finish. It must not be called from
// a work item running on the same queue.
func (q *SerialQueue) Sync(work func()) bool {
	finished := make(chan struct{})
	if !q.fifo.push(func() {
		defer close(finished)
		work()
	}) {
		return false
	}
	<-finished
	return true
}

// Pending returns the number of queued items that have not started yet.
func (q *SerialQueue) Pending() int {
	return q.fifo.pending()
}

// Shutdown stops accepting work and returns at once. Items already queued
// still run, after which the goroutine exits. Unlike Close it may be called
// from a work item running on the queue.
func (q *SerialQueue) Shutdown() {
	q.fifo.close()
}

// Done is closed once the goroutine has exited.
func (q *SerialQueue) Done() <-chan struct{} {
	return q.done
}

// Close stops accepting work, runs whatever is already queued and waits for
// the goroutine to exit. Calling Close more than once is safe. Close must
// not be called from a work item running on the same queue; use Shutdown
// there.
func (q *SerialQueue) Close() {
	q.Shutdown()
	<-q.done
}

func (q *SerialQueue) run() {
	defer close(q.done)

	for {
		work, more, ok := q.fifo.pop()
		if !ok {
			return
		}
		if !more {
			<-q.fifo.signal
			continue
		}
		q.fifo.execute(work)
	}
}

var _ Queue = (*SerialQueue)(nil)
