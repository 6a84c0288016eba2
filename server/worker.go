package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned for work submitted to a stopped worker.
var ErrWorkerStopped = errors.New("worker stopped")

// request represents a unit of work to be executed on the worker goroutine.
type request[T any] struct {
	fn   func(T) interface{}
	done chan result
}

// result holds the return value from a worker operation.
type result struct {
	value interface{}
	err   error
}

// Worker serializes all access to one instance through a single goroutine.
// Runtimes and compilers are single-threaded; every RPC or LSP handler must
// go through a worker to avoid data races.
//
// Besides ordinary work, a worker accepts inspections: read-only work that
// may also run at a safe point in the middle of a long call, when the
// instance's owner calls ServeInspections from that goroutine.
type Worker[T any] struct {
	instance T
	requests chan request[T]
	inspect  chan request[T]
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker owning instance and starts its goroutine.
func NewWorker[T any](instance T) *Worker[T] {
	w := &Worker[T]{
		instance: instance,
		requests: make(chan request[T], 64),
		inspect:  make(chan request[T], 16),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on the dedicated goroutine.
func (w *Worker[T]) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case req := <-w.inspect:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the instance, recovering from panics.
func (w *Worker[T]) execute(fn func(T) interface{}) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("%v", r)
		}
	}()
	res.value = fn(w.instance)
	return res
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Returns the result and any error (including panics).
func (w *Worker[T]) Do(fn func(T) interface{}) (interface{}, error) {
	return w.submit(context.Background(), w.requests, fn)
}

// Inspect submits read-only work. It runs when the worker is idle or at the
// next safe point of the work in progress, whichever comes first.
func (w *Worker[T]) Inspect(ctx context.Context, fn func(T) interface{}) (interface{}, error) {
	return w.submit(ctx, w.inspect, fn)
}

func (w *Worker[T]) submit(ctx context.Context, ch chan request[T], fn func(T) interface{}) (interface{}, error) {
	req := request[T]{fn: fn, done: make(chan result, 1)}
	select {
	case ch <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeInspections runs every pending inspection without blocking. It must
// be called on the worker goroutine, from within work submitted with Do.
func (w *Worker[T]) ServeInspections() {
	for {
		select {
		case req := <-w.inspect:
			req.done <- w.execute(req.fn)
		default:
			return
		}
	}
}

// Stop shuts down the worker goroutine. Pending and later submissions fail
// with ErrWorkerStopped.
func (w *Worker[T]) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// Instance returns the underlying instance, for setup before any work is
// submitted or for metadata that doesn't touch mutable state.
func (w *Worker[T]) Instance() T {
	return w.instance
}
