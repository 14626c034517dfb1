package booking

import (
	"context"
	"sync"

	"github.com/iliyamo/cinema-booking/internal/model"
)

type taskKind int

const (
	taskAdd taskKind = iota
	taskRemove
)

func (k taskKind) String() string {
	if k == taskAdd {
		return "add"
	}
	return "remove"
}

// toggleTask is one queued seat operation against the bill it was queued for.
type toggleTask struct {
	kind taskKind
	seat model.Seat
}

// ToggleQueue serializes seat operations.  Tasks are handled strictly in
// push order by a single worker goroutine, so task N+1 never starts before
// task N's upstream call has returned, whatever its latency.  The queue is
// unbounded; a wake channel tells the worker new work arrived.
type ToggleQueue struct {
	handle func(context.Context, toggleTask)

	mu       sync.Mutex
	tasks    []toggleTask
	inFlight bool
	busy     bool
	stopped  bool
	idle     chan struct{} // closed while !busy

	wake chan struct{}
	done chan struct{}
}

// newToggleQueue starts the worker.  It exits when ctx is cancelled; tasks
// still queued at that point are dropped.
func newToggleQueue(ctx context.Context, handle func(context.Context, toggleTask)) *ToggleQueue {
	q := &ToggleQueue{
		handle: handle,
		idle:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	close(q.idle)
	go q.run(ctx)
	return q
}

// push appends t.  It reports false once the worker has stopped.
func (q *ToggleQueue) push(t toggleTask) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	if !q.busy {
		q.busy = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *ToggleQueue) run(ctx context.Context) {
	defer q.stop()
	for {
		if ctx.Err() != nil {
			return
		}
		t, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.handle(ctx, t)
		q.finish()
	}
}

func (q *ToggleQueue) next() (toggleTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return toggleTask{}, false
	}
	t := q.tasks[0]
	q.tasks[0] = toggleTask{}
	q.tasks = q.tasks[1:]
	q.inFlight = true
	return t, true
}

func (q *ToggleQueue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = false
	if len(q.tasks) == 0 && q.busy {
		q.busy = false
		close(q.idle)
	}
}

func (q *ToggleQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.tasks = nil
	q.inFlight = false
	if q.busy {
		q.busy = false
		close(q.idle)
	}
	q.mu.Unlock()
	close(q.done)
}

// Pending counts queued plus in-flight tasks.
func (q *ToggleQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	if q.inFlight {
		n++
	}
	return n
}

// Syncing is true from the moment a task is pushed until the queue has
// fully drained.
func (q *ToggleQueue) Syncing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Wait blocks until the queue is drained (or stopped) or ctx is done.
func (q *ToggleQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has exited.
func (q *ToggleQueue) Done() <-chan struct{} { return q.done }
