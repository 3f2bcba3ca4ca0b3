package loop

import (
	"context"
	"fmt"
	"log/slog"
)

// Loop runs posted continuations sequentially on one goroutine.
//
// Thread-safety model:
//   - Post(): safe from any goroutine, including from inside a continuation
//   - Run(): must be called from exactly one goroutine
type Loop struct {
	queue  *eventQueue
	clock  *Clock
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for continuation failures.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// New creates a loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	clock := NewClock()
	l := &Loop{
		queue:  newEventQueue(clock),
		clock:  clock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules fn to run on the loop goroutine.
// Returns false if the loop has been stopped; fn is then never run.
func (l *Loop) Post(name string, fn func()) bool {
	return l.queue.Enqueue(Event{Name: name, Fn: fn})
}

// Run processes events until ctx is cancelled or Stop is called.
// Events already queued when Stop is called are still processed.
//
// A panicking continuation is logged and processing continues; one bad
// callback must not wedge every other action kind.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ev, ok := l.queue.TryDequeue(); ok {
			l.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately.
			if l.queue.Len() == 0 && l.stopped() {
				return nil
			}
		}
	}
}

// Stop closes the loop to new events. Run returns once the queue drains.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Pending returns the number of queued events.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Seq returns the sequence number of the most recently posted event.
func (l *Loop) Seq() int64 {
	return l.clock.Current()
}

func (l *Loop) stopped() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

func (l *Loop) process(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop continuation panicked",
				"event", ev.Name,
				"seq", ev.Seq,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	l.logger.Debug("loop event", "event", ev.Name, "seq", ev.Seq)
	ev.Fn()
}
