package dispatch

import (
	"context"
)

// Loop is a queue drained by the goroutine that calls Run. The daemon runs
// it on the main goroutine so observers always see deliveries from there.
type Loop struct {
	fifo *fifo
}

// NewLoop creates an idle loop. Work queued before Run starts is kept.
func NewLoop(label string) *Loop {
	return &Loop{fifo: newFIFO(label)}
}

// Async enqueues work. It never blocks.
func (l *Loop) Async(work func()) bool {
	return l.fifo.push(work)
}

// Run executes queued work until ctx is cancelled or the loop is closed
// and drained. It returns ctx.Err() on cancellation and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	for {
		work, more, ok := l.fifo.pop()
		if !ok {
			return nil
		}
		if more {
			l.fifo.execute(work)
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.fifo.signal:
		}
	}
}

// Close stops accepting work. A running Run returns once the backlog is
// empty.
func (l *Loop) Close() {
	l.fifo.close()
}

var _ Queue = (*Loop)(nil)
