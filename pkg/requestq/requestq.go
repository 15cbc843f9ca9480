// Package requestq serializes cart mutations issued by a single client
// session. One operation is in flight at a time per queue; submission order
// is preserved. It gives no cross-client protection; that is the job of the
// version check on the cart row.
package requestq

import (
	"context"
	"sync"
)

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Queue runs enqueued functions one at a time, in submission order.
type Queue struct {
	mu      sync.Mutex
	pending []*task
	running bool

	// idle fires after the drain loop parks with nothing pending. Set once,
	// before the queue is shared.
	idle func()
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Do enqueues fn and blocks until it has been run. A task whose context is
// already canceled when its turn arrives is skipped with the context error;
// once started, a task always runs to completion.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	return <-q.enqueue(ctx, fn).done
}

func (q *Queue) enqueue(ctx context.Context, fn func(context.Context) error) *task {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
	return t
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			if q.idle != nil {
				q.idle()
			}
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := next.ctx.Err(); err != nil {
			next.done <- err
			continue
		}
		next.done <- next.fn(next.ctx)
	}
}

// Registry hands out one queue per client session key. A queue lives only
// while its client has work in flight; once drained it is dropped, so the
// map does not grow with every guest token ever seen.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// Do runs fn on the queue for the given key, creating the queue on first
// use. Enqueueing happens under the registry lock, so a queue being dropped
// as idle can never lose a task.
func (r *Registry) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	r.mu.Lock()
	q, ok := r.queues[key]
	if !ok {
		q = NewQueue()
		q.idle = func() { r.drop(key, q) }
		r.queues[key] = q
	}
	t := q.enqueue(ctx, fn)
	r.mu.Unlock()

	return <-t.done
}

// drop removes the queue for key if it is still the registered one and has
// gone fully idle. A task enqueued between the drain parking and this call
// keeps the queue alive.
func (r *Registry) drop(key string, q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queues[key] != q {
		return
	}
	q.mu.Lock()
	idle := !q.running && len(q.pending) == 0
	q.mu.Unlock()
	if idle {
		delete(r.queues, key)
	}
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
