package reclaim

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/DudLab/gridstore/internal/logger"
)

// Event describes the outcome of one executed task, for logging, metrics,
// and tests that assert ordering.
type Event struct {
	Path  string
	Kind  TaskKind
	Start time.Time
	End   time.Time
	Err   error
}

// Config configures an Executor.
type Config struct {
	// Workers is the number of concurrent removal workers
	// (default: GOMAXPROCS).
	Workers int

	// Observer, when set, is called after every task finishes, successes
	// and failures alike. It must not block for long.
	Observer func(Event)
}

// Executor runs removal DAGs on a shared pool of workers.
//
// Submission is fire-and-forget: Submit returns immediately and the graph
// runs in the background, honoring the ordering guarantee that no task
// starts before all of its dependencies have completed successfully.
// Independent subtrees interleave arbitrarily. There is no cancellation:
// once submitted, every task runs to completion or fails.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	cond     *sync.Cond
	ready    []*job
	pending  int
	started  bool
	stopping bool

	workers sync.WaitGroup
}

// job is one schedulable task instance within a submitted graph.
type job struct {
	task       *Task
	run        *run
	waiting    int // dependencies not yet completed
	dependents []*job
	failed     bool // a dependency failed; skip execution
}

// run tracks one submitted graph through its Handle.
type run struct {
	handle    *Handle
	remaining int
}

// Handle reports the completion of one submitted removal graph. Failures
// surface here, when the caller inspects completion, not at submission.
type Handle struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed once every task of the graph has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the first failure, or nil. Valid once Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the graph finishes or ctx expires.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		h.err = err
	}
}

// NewExecutor creates an executor. Call Start before submitting.
func NewExecutor(cfg Config) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	e := &Executor{cfg: cfg}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the worker pool. Safe to call once.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	logger.Info("Reclaim executor started: workers=%d", e.cfg.Workers)
	for i := 0; i < e.cfg.Workers; i++ {
		e.workers.Add(1)
		go e.worker()
	}
}

// Shutdown stops accepting submissions, waits for all submitted graphs to
// finish, then stops the workers. It returns the context error if the
// deadline expires first; queued tasks keep running regardless.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopping = true
	e.cond.Broadcast()
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logger.Info("Reclaim executor stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Reclaim executor shutdown timeout")
		return ctx.Err()
	}
}

// Submit schedules a removal graph and returns without waiting. The
// returned handle reports completion and the first failure, if any.
func (e *Executor) Submit(t *Task) *Handle {
	h := &Handle{done: make(chan struct{})}
	r := &run{handle: h}

	// Flatten the graph into jobs and wire dependents. An explicit work
	// list keeps very deep trees off the call stack.
	root := &job{task: t, run: r}
	jobs := map[*Task]*job{t: root}
	order := []*job{root}
	work := []*Task{t}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		j := jobs[cur]
		for _, dep := range cur.Deps {
			dj, ok := jobs[dep]
			if !ok {
				dj = &job{task: dep, run: r}
				jobs[dep] = dj
				order = append(order, dj)
				work = append(work, dep)
			}
			dj.dependents = append(dj.dependents, j)
			j.waiting++
		}
	}
	r.remaining = len(order)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		// Late submissions still run: the ordering contract promises
		// completion for everything accepted, and rejecting here would
		// leak quarantined data. Shutdown waits for these too.
		logger.Warn("Reclaim submission during shutdown: %s", t.Path)
	}
	e.pending += len(order)
	for _, j := range order {
		if j.waiting == 0 {
			e.ready = append(e.ready, j)
		}
	}
	e.cond.Broadcast()
	return h
}

// worker pops ready jobs until shutdown drains the queue.
func (e *Executor) worker() {
	defer e.workers.Done()

	for {
		e.mu.Lock()
		for len(e.ready) == 0 && !(e.stopping && e.pending == 0) {
			e.cond.Wait()
		}
		if len(e.ready) == 0 {
			// Stopping with nothing left to run.
			e.mu.Unlock()
			return
		}
		j := e.ready[0]
		e.ready = e.ready[1:]
		e.mu.Unlock()

		e.execute(j)
	}
}

func (e *Executor) execute(j *job) {
	start := time.Now()
	var err error
	if j.failed {
		err = fmt.Errorf("%w: dependency of %q failed", ErrDeletionFailed, j.task.Path)
	} else {
		err = removeTask(j.task)
	}
	end := time.Now()

	if err != nil {
		j.run.handle.fail(err)
		logger.Error("Reclaim task failed: path=%s kind=%s err=%v", j.task.Path, j.task.Kind, err)
	} else {
		logger.Debug("Reclaim task done: path=%s kind=%s", j.task.Path, j.task.Kind)
	}

	if obs := e.cfg.Observer; obs != nil {
		obs(Event{Path: j.task.Path, Kind: j.task.Kind, Start: start, End: end, Err: err})
	}

	e.mu.Lock()
	for _, dep := range j.dependents {
		if err != nil {
			dep.failed = true
		}
		dep.waiting--
		if dep.waiting == 0 {
			e.ready = append(e.ready, dep)
		}
	}
	j.run.remaining--
	finished := j.run.remaining == 0
	e.pending--
	e.cond.Broadcast()
	e.mu.Unlock()

	if finished {
		close(j.run.handle.done)
	}
}

// removeTask performs one task's own removal. An already-absent path is
// success, supporting idempotent retries; any other failure is fatal for
// the task and its dependents.
func removeTask(t *Task) error {
	switch t.Kind {
	case TaskNoop:
		return nil
	case TaskFile:
		err := os.Remove(t.Path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing file %q: %v", ErrDeletionFailed, t.Path, err)
		}
		return nil
	case TaskDir:
		// Children are gone by the time this runs; RemoveAll also sweeps
		// anything created concurrently and is a no-op on absent paths.
		if err := os.RemoveAll(t.Path); err != nil {
			return fmt.Errorf("%w: removing directory %q: %v", ErrDeletionFailed, t.Path, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown task kind %d for %q", ErrDeletionFailed, int(t.Kind), t.Path)
	}
}
