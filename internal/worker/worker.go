// Package worker consumes queued turn jobs and runs them through the
// orchestrator with a fixed pool of goroutines.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/convo"
	"github.com/suPer8Hu/rpg-chat/internal/store/rabbitmq"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

type Runner interface {
	Run(ctx context.Context, req convo.Request) (*convo.Response, error)
}

type Retrier interface {
	PublishRetry(ctx context.Context, msg rabbitmq.JobMessage, delay time.Duration) error
}

type Options struct {
	Concurrency int
	// MaxAttempts bounds redelivery of jobs that failed before the turn ran.
	MaxAttempts int
	RetryDelay  time.Duration
}

type Pool struct {
	repo  *chat.Repo
	run   Runner
	retry Retrier
	opts  Options
	log   *zap.Logger
}

func New(repo *chat.Repo, run Runner, retry Retrier, opts Options, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	switch {
	case opts.Concurrency <= 0:
		opts.Concurrency = 2
	case opts.Concurrency > 50:
		opts.Concurrency = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Pool{repo: repo, run: run, retry: retry, opts: opts, log: log}
}

// Run dispatches deliveries to the pool until ctx is cancelled or msgs
// closes, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	jobs := make(chan amqp.Delivery, p.opts.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(p.opts.Concurrency)
	for i := 0; i < p.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				p.handle(ctx, workerID, d)
			}
		}(i)
	}
	p.log.Info("worker started", zap.Int("concurrency", p.opts.Concurrency))

	stop := func() {
		close(jobs)
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker shutting down")
			stop()
			return nil

		case d, ok := <-msgs:
			if !ok {
				stop()
				return ErrDeliveriesClosed
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				stop()
				return nil
			}
		}
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		p.log.Warn("bad job message", zap.Int("worker", workerID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if m.Attempt <= 0 {
		m.Attempt = 1
	}
	log := p.log.With(zap.Int("worker", workerID), zap.String("job_id", m.JobID), zap.Int("attempt", m.Attempt))

	start := time.Now()
	err := p.handleJob(ctx, m.JobID)
	switch {
	case err == nil:
		log.Debug("job done", zap.Duration("cost", time.Since(start)))
		p.ack(log, d)

	case errors.Is(err, errTransient) && m.Attempt < p.opts.MaxAttempts:
		log.Warn("job retry", zap.Error(err))
		next := rabbitmq.JobMessage{JobID: m.JobID, Attempt: m.Attempt + 1}
		if perr := p.retry.PublishRetry(ctx, next, p.opts.RetryDelay); perr != nil {
			log.Error("publish retry", zap.Error(perr))
			_ = d.Nack(false, false)
			return
		}
		p.ack(log, d)

	default:
		log.Error("job failed", zap.Duration("cost", time.Since(start)), zap.Error(err))
		if errors.Is(err, errTransient) {
			_ = p.repo.MarkJobFailed(ctx, m.JobID, err.Error())
		}
		_ = d.Nack(false, false)
	}
}

func (p *Pool) ack(log *zap.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}

var errTransient = errors.New("transient")

func transient(err error) error { return fmt.Errorf("%w: %w", errTransient, err) }

// handleJob loads and claims the job, then runs the turn once. Store errors
// before the claim are transient. A failed turn is recorded on the job and
// not re-run.
func (p *Pool) handleJob(ctx context.Context, jobID string) error {
	j, err := p.repo.GetJobByID(ctx, jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err != nil {
		return transient(err)
	}
	if j.Status != chat.JobQueued {
		// duplicate delivery
		return nil
	}

	claimed, err := p.repo.UpdateJobStatusRunning(ctx, jobID)
	if err != nil {
		return transient(err)
	}
	if !claimed {
		return nil
	}

	var req convo.Request
	if err := json.Unmarshal([]byte(j.Request), &req); err != nil {
		_ = p.repo.MarkJobFailed(ctx, jobID, "decode request: "+err.Error())
		return nil
	}

	resp, err := p.run.Run(ctx, req)
	if err != nil {
		if merr := p.repo.MarkJobFailed(ctx, jobID, err.Error()); merr != nil {
			return merr
		}
		return nil
	}

	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return p.repo.MarkJobSucceeded(ctx, jobID, string(b))
}
