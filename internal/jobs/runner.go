package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/heimdex/heimdex-captions/internal/logging"
)

// JobExecutor runs a single admitted job.
type JobExecutor interface {
	Execute(ctx context.Context, id string) error
	Abandon(id string, cause error)
}

type Stats struct {
	Workers  int  `json:"workers"`
	Active   int  `json:"active"`
	Queued   int  `json:"queued"`
	Capacity int  `json:"capacity"`
	Running  bool `json:"running"`
}

// Runner is a fixed pool of workers fed by a bounded admission queue.
type Runner struct {
	executor JobExecutor
	workers  int
	queue    chan string
	logger   *slog.Logger

	active  atomic.Int32
	running atomic.Bool

	// admitMu orders Enqueue against the final drain.
	admitMu sync.Mutex
	closed  bool
}

func NewRunner(executor JobExecutor, workers, queueDepth int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Runner{
		executor: executor,
		workers:  workers,
		queue:    make(chan string, queueDepth),
		logger:   logging.WithComponent(logger, "runner"),
	}
}

// Enqueue admits id without blocking. It returns ErrQueueFull when every
// worker is busy and the queue is at capacity, and ErrShuttingDown once the
// pool has stopped.
func (r *Runner) Enqueue(id string) error {
	r.admitMu.Lock()
	defer r.admitMu.Unlock()
	if r.closed {
		return ErrShuttingDown
	}
	select {
	case r.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the workers until ctx is cancelled, then fails any job still
// waiting in the queue. It blocks until every worker has returned.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("job runner started", "workers", r.workers, "queue_depth", cap(r.queue))

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	r.admitMu.Lock()
	r.closed = true
	r.admitMu.Unlock()
	r.drain()
	r.logger.Info("job runner stopped")
}

func (r *Runner) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.execute(ctx, worker, id)
		}
	}
}

func (r *Runner) execute(ctx context.Context, worker int, id string) {
	r.active.Add(1)
	defer r.active.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job executor panicked", "job_id", id, "worker", worker, "panic", rec)
			r.executor.Abandon(id, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := r.executor.Execute(ctx, id); err != nil {
		r.logger.Debug("job finished with error", "job_id", id, "worker", worker, "error", err)
	}
}

func (r *Runner) drain() {
	for {
		select {
		case id := <-r.queue:
			r.executor.Abandon(id, ErrShuttingDown)
		default:
			return
		}
	}
}

func (r *Runner) Stats() Stats {
	return Stats{
		Workers:  r.workers,
		Active:   int(r.active.Load()),
		Queued:   len(r.queue),
		Capacity: cap(r.queue),
		Running:  r.running.Load(),
	}
}
