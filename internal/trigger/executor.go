package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/operations"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Task is one operation dispatch queued by the engine.
type Task struct {
	RuleID      types.RuleID
	Operation   string
	Definitions types.Definitions
	Attributes  types.Attributes
	Dispatch    operations.DispatchFunc
}

// Executor runs operation tasks on a bounded worker pool. Every task's error
// or panic is logged and counted; submitters never wait on completion.
type Executor struct {
	workers   int
	queueSize int
	work      chan Task
	wg        sync.WaitGroup
	metrics   *Metrics
	logger    *slog.Logger

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted int64
	processed int64
	failed    int64
	dropped   int64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorMetrics reports task outcomes to m.
func WithExecutorMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithExecutorLogger sets the logger used for task failures.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. Non-positive sizes take defaults (4 workers, 256 slots).
func NewExecutor(workers, queueSize int, opts ...ExecutorOption) *Executor {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	e := &Executor{
		workers:   workers,
		queueSize: queueSize,
		work:      make(chan Task, queueSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the workers. Tasks run with ctx.
func (e *Executor) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return ErrExecutorAlreadyStarted
	}
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.started = true
	return nil
}

// Submit queues a task without blocking. A full queue drops the task.
func (e *Executor) Submit(task Task) error {
	if task.Dispatch == nil {
		return ErrNilDispatch
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started {
		return ErrExecutorNotStarted
	}
	if e.stopped {
		return ErrExecutorStopped
	}

	select {
	case e.work <- task:
		atomic.AddInt64(&e.submitted, 1)
		if e.metrics != nil {
			e.metrics.queueDepth.Set(float64(len(e.work)))
		}
		return nil
	default:
		atomic.AddInt64(&e.dropped, 1)
		if e.metrics != nil {
			e.metrics.taskDropped.Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued tasks to finish.
func (e *Executor) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started || e.stopped {
		return nil
	}
	close(e.work)
	e.stopped = true

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// ExecutorStats is a point-in-time view of executor counters.
type ExecutorStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Workers:    e.workers,
		QueueSize:  e.queueSize,
		QueueDepth: len(e.work),
		Submitted:  atomic.LoadInt64(&e.submitted),
		Processed:  atomic.LoadInt64(&e.processed),
		Failed:     atomic.LoadInt64(&e.failed),
		Dropped:    atomic.LoadInt64(&e.dropped),
	}
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()

	for task := range e.work {
		start := time.Now()
		err := e.run(ctx, task)
		duration := time.Since(start)

		atomic.AddInt64(&e.processed, 1)
		status := "success"
		if err != nil {
			atomic.AddInt64(&e.failed, 1)
			status = "error"
			e.logger.Error("operation failed",
				"rule_id", task.RuleID,
				"operation", task.Operation,
				"error", err)
		}
		if e.metrics != nil {
			if err != nil {
				e.metrics.taskFailures.WithLabelValues(task.Operation).Inc()
			}
			e.metrics.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
			e.metrics.queueDepth.Set(float64(len(e.work)))
		}
	}
}

// run invokes the task, converting a panic into an error.
func (e *Executor) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return task.Dispatch(ctx, task.Definitions, task.Attributes)
}
