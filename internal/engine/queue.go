package engine

import (
	"context"
	"log/slog"
	"sync"
)

// SerialQueue linearizes work against one shared resource. Jobs run strictly
// one at a time, in submission order, on a single dedicated goroutine; each
// caller receives the result of its own job, never of whichever job happened
// to finish first.
//
// Three instances front the broker gateway and shared configuration state:
// quote lookups, net-position refreshes, and config-sync jobs.
type SerialQueue struct {
	name string
	jobs chan func()

	closeOnce sync.Once
	done      chan struct{}
}

// NewSerialQueue creates a queue and starts its consumer goroutine. size
// bounds how many jobs may wait; a full queue blocks Do until a slot frees.
func NewSerialQueue(name string, size int) *SerialQueue {
	q := &SerialQueue{
		name: name,
		jobs: make(chan func(), size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case job := <-q.jobs:
			job()
		}
	}
}

// Do enqueues fn and waits for its completion. Enqueueing and waiting both
// respect ctx; a job that was already admitted still runs to completion even
// if its caller gave up, and its result is discarded.
func (q *SerialQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)

	job := func() {
		result <- fn(ctx)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return context.Canceled
	case q.jobs <- job:
	}

	select {
	case <-ctx.Done():
		slog.Debug("serial queue caller gave up", slog.String("queue", q.name))
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Close stops the consumer. Jobs still waiting in the queue never run.
func (q *SerialQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// DoResult runs fn on the queue and returns its typed result to the caller.
// The result travels through a buffered channel so a job abandoned by its
// caller can still finish and publish safely; nobody reads it.
func DoResult[T any](ctx context.Context, q *SerialQueue, fn func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	result := make(chan outcome, 1)

	job := func() {
		val, err := fn(ctx)
		result <- outcome{val: val, err: err}
	}

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, context.Canceled
	case q.jobs <- job:
	}

	select {
	case <-ctx.Done():
		slog.Debug("serial queue caller gave up", slog.String("queue", q.name))
		return zero, ctx.Err()
	case out := <-result:
		return out.val, out.err
	}
}
