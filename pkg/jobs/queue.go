package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job represents a queued background task carrying a typed payload.
type Job[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler[T any] func(context.Context, Job[T]) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue[T any] struct {
	name    string
	handler Handler[T]

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan Job[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue[T any](name string, handler Handler[T], cfg QueueConfig) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue[T]{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job[T], cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue pushes a payload onto the queue and returns the job id.
// It blocks while the buffer is full until ctx or the queue is cancelled.
func (q *Queue[T]) Enqueue(ctx context.Context, payload T) (string, error) {
	job := Job[T]{ID: uuid.NewString(), Payload: payload, Enqueued: time.Now().UTC()}
	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *Queue[T]) push(ctx context.Context, job Job[T]) error {
	q.mu.Lock()
	qctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}

	select {
	case <-qctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, qctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(job, err)
			}
		}
	}
}

func (q *Queue[T]) handleFailure(job Job[T], err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))

	q.wg.Add(1)
	go func(j Job[T]) {
		defer q.wg.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.push(q.ctx, j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
