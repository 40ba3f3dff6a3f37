// package queue serializes outbound API calls through a single in-process worker.
//
// The platform rate-limits aggressively, so every request funnels through one
// Queue: tasks run strictly one at a time in submission order, with a fixed
// delay between one task settling and the next starting. Rate-limit failures
// are retried per task with the server's retry-after hint when present, else
// exponential backoff.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultDelay is the pause between a task settling and the next starting.
	DefaultDelay = 50 * time.Millisecond

	// DefaultMaxRetries bounds retry attempts after a rate-limited first try.
	DefaultMaxRetries = 5

	// DefaultBackoff is the first retry delay when the server gives no hint.
	// Doubles on each subsequent attempt.
	DefaultBackoff = 1000 * time.Millisecond
)

// Task is an asynchronous unit of outbound work.
type Task func(ctx context.Context) (any, error)

// Outcome carries a settled task's result or failure.
type Outcome struct {
	Value any
	Err   error
}

// RetryHinter is implemented by errors that may carry a "too many requests"
// signal. Retryable reports whether this failure is one; RetryAfter reports
// the server-specified wait when the response included one. Errors that do
// not implement RetryHinter are never retried.
type RetryHinter interface {
	error
	Retryable() bool
	RetryAfter() (time.Duration, bool)
}

// Options configures a Queue. Zero values fall back to the package defaults.
type Options struct {
	Delay      time.Duration // inter-request delay between tasks
	MaxRetries int           // retries per task after a rate-limited attempt
	Backoff    time.Duration // initial backoff when no retry-after hint
	Logger     *log.Logger
}

type item struct {
	ctx  context.Context
	fn   Task
	done chan Outcome
}

// Queue is a single-worker FIFO task queue.
//
// The worker starts lazily on first Submit and exits when the queue drains;
// a concurrent Submit during draining never spawns a second worker.
type Queue struct {
	delay      time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger

	mu      sync.Mutex
	pending []item
	running bool
}

// New creates a Queue with the given options.
func New(opts Options) *Queue {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Queue{
		delay:      opts.Delay,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     opts.Logger,
	}
}

// Submit enqueues a task and returns a channel that receives exactly one
// Outcome once the task settles, then closes.
func (q *Queue) Submit(ctx context.Context, fn Task) <-chan Outcome {
	done := make(chan Outcome, 1)

	q.mu.Lock()
	q.pending = append(q.pending, item{ctx: ctx, fn: fn, done: done})
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	return done
}

// Await blocks until the task settles and asserts its value to T.
func Await[T any](done <-chan Outcome) (T, error) {
	var zero T

	out := <-done
	if out.Err != nil {
		return zero, out.Err
	}
	if out.Value == nil {
		return zero, nil
	}

	v, ok := out.Value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected task result type %T", out.Value)
	}
	return v, nil
}

// drain runs queued tasks sequentially until the queue empties.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		out := q.run(next)
		next.done <- out
		close(next.done)

		// Blunt rate-limit guard, independent of the retry policy.
		time.Sleep(q.delay)
	}
}

// run executes a task, retrying rate-limited attempts per the queue's policy.
//
// Exhausting retries returns the last rate-limit failure unchanged; any other
// failure propagates immediately.
func (q *Queue) run(it item) Outcome {
	ctx := it.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := q.backoff
	retries := 0

	for {
		value, err := it.fn(ctx)
		if err == nil {
			return Outcome{Value: value}
		}

		var hint RetryHinter
		if !errors.As(err, &hint) || !hint.Retryable() {
			return Outcome{Err: err}
		}
		if retries >= q.maxRetries {
			return Outcome{Err: err}
		}

		wait := backoff
		if d, ok := hint.RetryAfter(); ok {
			wait = d
		} else {
			backoff *= 2
		}
		retries++

		q.logger.Warn("rate limited, retrying", "attempt", retries, "wait", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return Outcome{Err: ctx.Err()}
		}
	}
}
