package task

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Task is a handle on one background function. Callers may poll it, block on it, or select on Done.
type Task struct {
	id       string
	done     chan struct{}
	err      error
	started  time.Time
	finished time.Time
}

func (t *Task) Id() string {
	return t.id
}

// Done is closed once the function has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the error of the finished function. It is nil while the task is still running.
func (t *Task) Err() error {
	if !t.Finished() {
		return nil
	}
	return t.err
}

// Duration returns how long the function ran, or zero while it is still running.
func (t *Task) Duration() time.Duration {
	if !t.Finished() {
		return 0
	}
	return t.finished.Sub(t.started)
}

// Wait blocks until the task finishes or ctx is done. It returns the task's error, or ctx.Err() if ctx ended first.
// Ending the wait does not stop the task.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner starts one-shot background tasks and tracks them so that shutdown can wait for stragglers.
type Runner struct {
	latency prometheus.Observer
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]*Task
}

// NewRunner returns a Runner that records task durations in latency. latency may be nil.
func NewRunner(latency prometheus.Observer) *Runner {
	return &Runner{
		latency: latency,
		running: map[string]*Task{},
	}
}

// Go runs f on a new goroutine and returns its handle immediately. A panic in f is recovered and reported as the
// task's error.
func (r *Runner) Go(id string, f func() error) *Task {
	t := &Task{
		id:      id,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	r.mu.Lock()
	r.running[id] = t
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				t.err = errors.Errorf("task %s panicked: %v", id, p)
			}
			t.finished = time.Now()
			if r.latency != nil {
				r.latency.Observe(t.finished.Sub(t.started).Seconds())
			}
			r.mu.Lock()
			delete(r.running, id)
			r.mu.Unlock()
			close(t.done)
		}()
		t.err = f()
	}()
	return t
}

// Running returns the number of tasks that have not yet finished.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// WaitAll waits for every started task to finish. Returns true if the timeout elapsed first.
func (r *Runner) WaitAll(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		r.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}
