package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/common"
)

// ErrExecutorStopped is returned for work submitted after, or still queued
// at, shutdown
var ErrExecutorStopped = errors.New("executor stopped")

// Job is blocking work run on a worker goroutine
type Job func(ctx context.Context) (interface{}, error)

// Future resolves once its job has run
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result interface{}, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Done is closed when the job has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job finishes or ctx ends. A cancelled wait does
// not cancel the job.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type work struct {
	userID string
	name   string
	job    Job
	future *Future
}

// Executor runs jobs on a fixed set of workers. Jobs for the same user
// run one at a time in submission order, since each user drives a single
// browser; jobs for different users run in parallel.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   []*work
	backlog map[string][]*work
	busy    map[string]bool
	stopped bool

	concurrency int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      arbor.ILogger
}

// NewExecutor creates an executor; call Start to launch workers
func NewExecutor(concurrency int, logger arbor.ILogger) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		backlog:     make(map[string][]*work),
		busy:        make(map[string]bool),
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the worker goroutines
func (e *Executor) Start() {
	e.logger.Info().Int("concurrency", e.concurrency).Msg("Starting task executor")
	for i := 0; i < e.concurrency; i++ {
		e.wg.Add(1)
		workerID := i
		common.SafeGo(e.logger, fmt.Sprintf("taskWorker-%d", workerID), func() {
			defer e.wg.Done()
			e.worker(workerID)
		})
	}
}

// Submit queues a job for the user and returns its future
func (e *Executor) Submit(userID, name string, job Job) (*Future, error) {
	w := &work{userID: userID, name: name, job: job, future: newFuture()}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrExecutorStopped
	}
	if e.busy[userID] {
		e.backlog[userID] = append(e.backlog[userID], w)
		e.logger.Debug().
			Str("user_id", userID).
			Str("job", name).
			Int("waiting", len(e.backlog[userID])).
			Msg("User slot busy, job queued")
		return w.future, nil
	}
	e.busy[userID] = true
	e.ready = append(e.ready, w)
	e.cond.Signal()
	return w.future, nil
}

// Do submits a job and waits for its result
func (e *Executor) Do(ctx context.Context, userID, name string, job Job) (interface{}, error) {
	future, err := e.Submit(userID, name, job)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

func (e *Executor) worker(workerID int) {
	e.logger.Debug().Int("worker_id", workerID).Msg("Worker started")
	for {
		e.mu.Lock()
		for len(e.ready) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped {
			e.mu.Unlock()
			e.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		}
		w := e.ready[0]
		e.ready = e.ready[1:]
		e.mu.Unlock()

		e.run(w)
	}
}

func (e *Executor) run(w *work) {
	defer e.release(w.userID)

	var (
		result interface{}
		err    error
	)
	func() {
		defer common.Recover(e.logger, w.name, func(perr error) { err = perr })
		result, err = w.job(e.ctx)
	}()
	w.future.resolve(result, err)
}

// release frees the user's slot or hands it to the user's next job
func (e *Executor) release(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	waiting := e.backlog[userID]
	if len(waiting) == 0 || e.stopped {
		delete(e.busy, userID)
		return
	}
	next := waiting[0]
	if len(waiting) == 1 {
		delete(e.backlog, userID)
	} else {
		e.backlog[userID] = waiting[1:]
	}
	e.ready = append(e.ready, next)
	e.cond.Signal()
}

// Stop fails queued jobs, cancels running ones and waits for workers
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	pending := e.ready
	for _, waiting := range e.backlog {
		pending = append(pending, waiting...)
	}
	e.ready = nil
	e.backlog = make(map[string][]*work)
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, w := range pending {
		w.future.resolve(nil, ErrExecutorStopped)
	}
	e.cancel()
	e.wg.Wait()

	e.logger.Info().Int("abandoned", len(pending)).Msg("Task executor stopped")
}
