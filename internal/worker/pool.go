package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned by Submit after Stop has been called
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrQueueFull is returned by Submit when every worker is busy and the wait queue is full
	ErrQueueFull = errors.New("worker pool queue is full")
)

// DefaultStopTimeout bounds how long Stop waits for running tasks
const DefaultStopTimeout = 30 * time.Second

// Task is one unit of fire-and-forget work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs submitted tasks on at most `workers` goroutines backed by ants. When all
// workers are busy Submit waits for a free one, as long as fewer than queueSize callers
// are already waiting; beyond that it fails with ErrQueueFull.
type Pool struct {
	log         *zap.Logger
	ants        *ants.Pool
	stopTimeout time.Duration

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	stop   sync.Once
}

func NewPool(workers, queueSize int, log *zap.Logger) (*Pool, error) {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{log: log, stopTimeout: DefaultStopTimeout}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	pool, err := ants.NewPool(workers,
		ants.WithMaxBlockingTasks(queueSize),
		ants.WithPanicHandler(func(r interface{}) {
			log.Error("task panicked", zap.Any("panic", r))
		}),
		ants.WithLogger(zap.NewStdLog(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.ants = pool
	return p, nil
}

// Start binds the context handed to tasks. Tasks receive a context derived from ctx
// that is cancelled once Stop returns.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel()
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Submit hands task to a worker. It may wait for a free worker but fails instead of
// joining a full wait queue.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()

	err := p.ants.Submit(func() {
		if err := task.Run(ctx); err != nil {
			p.log.Warn("task failed", zap.String("task", task.Name), zap.Error(err))
		}
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		return fmt.Errorf("%s: %w", task.Name, ErrQueueFull)
	case errors.Is(err, ants.ErrPoolClosed):
		return fmt.Errorf("%s: %w", task.Name, ErrPoolClosed)
	default:
		return fmt.Errorf("%s: %w", task.Name, err)
	}
}

// Running is the number of tasks currently executing
func (p *Pool) Running() int {
	return p.ants.Running()
}

// Waiting is the number of Submit callers blocked on a free worker
func (p *Pool) Waiting() int {
	return p.ants.Waiting()
}

// Stop refuses new tasks and waits up to the stop timeout for running ones. Callers
// still waiting in Submit get ErrPoolClosed.
func (p *Pool) Stop() {
	p.stop.Do(func() {
		if err := p.ants.ReleaseTimeout(p.stopTimeout); err != nil {
			p.log.Warn("worker pool did not drain", zap.Error(err), zap.Int("running", p.ants.Running()))
		}
		p.mu.Lock()
		p.cancel()
		p.mu.Unlock()
	})
}
