package camera

import (
	"context"
	"sync"
)

// Dispatcher schedules tasks on the consumer's execution context.
// Dispatch must not block and must not run the task inline.
type Dispatcher interface {
	Dispatch(task func())
}

// DispatcherFunc adapts a scheduling function to Dispatcher.
type DispatcherFunc func(task func())

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(task func()) {
	f(task)
}

// Loop is a single-threaded task queue, typically drained by the
// application's main goroutine. Tasks run one at a time in FIFO order.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Dispatch enqueues a task. It never blocks.
func (l *Loop) Dispatch(task func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// RunPending runs the tasks queued at the time of the call on the calling
// goroutine and returns how many ran. Tasks dispatched while running are
// left for the next call.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	batch := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for i, task := range batch {
		task()
		batch[i] = nil
	}
	return len(batch)
}

// Run executes tasks on the calling goroutine until ctx is cancelled.
// Tasks still queued at cancellation are not run.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for l.Pending() > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.runOne()
		}
	}
}

func (l *Loop) runOne() {
	l.mu.Lock()
	if len(l.tasks) == 0 {
		l.mu.Unlock()
		return
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.mu.Unlock()

	task()
}

var mainLoop = NewLoop()

// MainLoop returns the process-wide loop used by sessions that are not
// configured with a Dispatcher. The application drains it from its main
// goroutine with Run.
func MainLoop() *Loop {
	return mainLoop
}
