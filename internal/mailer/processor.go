package mailer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/capigrid/capigrid/internal/metrics"
)

// Processor drains the email queue in the background
type Processor struct {
	queue         *Queue
	sender        Sender
	workers       int
	retryInterval time.Duration
	maxRetries    int
	pollInterval  time.Duration
	logger        *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ProcessorConfig contains processor tuning
type ProcessorConfig struct {
	Workers       int
	RetryInterval time.Duration
	MaxRetries    int
	PollInterval  time.Duration
}

func NewProcessor(q *Queue, sender Sender, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return &Processor{
		queue:         q,
		sender:        sender,
		workers:       cfg.Workers,
		retryInterval: cfg.RetryInterval,
		maxRetries:    cfg.MaxRetries,
		pollInterval:  cfg.PollInterval,
		logger:        logger.With("component", "mailer"),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the worker goroutines
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("starting mail processor", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop stops the workers and waits for them to finish
func (p *Processor) Stop() {
	p.logger.Info("stopping mail processor")
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("mail processor stopped")
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.processOne(ctx, logger)
		}
	}
}

// processOne claims and delivers a single queued email
func (p *Processor) processOne(ctx context.Context, logger *slog.Logger) {
	email, err := p.queue.Dequeue(ctx)
	if err != nil {
		logger.Error("failed to dequeue email", "error", err)
		return
	}
	if email == nil {
		return
	}

	logger = logger.With("email_id", email.ID)

	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	err = p.sender.Send(sendCtx, email)
	cancel()

	if err == nil {
		email.Status = StatusDelivered
		metrics.IncEmailsSent("delivered")
		if err := p.queue.Update(ctx, email); err != nil {
			logger.Error("failed to update email status", "error", err)
		}
		return
	}

	logger.Warn("delivery failed", "error", err, "retry_count", email.RetryCount)

	email.RetryCount++
	email.LastError = err.Error()

	if IsTemporaryError(err) && email.RetryCount < p.maxRetries {
		backoff := p.backoff(email.RetryCount)
		email.Status = StatusDeferred
		email.NextRetryAt = time.Now().Add(backoff)
		metrics.IncEmailsSent("deferred")
		logger.Info("email deferred", "retry_count", email.RetryCount, "next_retry_at", email.NextRetryAt)
	} else {
		email.Status = StatusFailed
		metrics.IncEmailsSent("failed")
		logger.Error("email failed permanently", "retry_count", email.RetryCount, "max_retries", p.maxRetries)
	}

	if err := p.queue.Update(ctx, email); err != nil {
		logger.Error("failed to update email status", "error", err)
	}
}

// backoff doubles the retry interval per attempt, capped at one hour
func (p *Processor) backoff(retryCount int) time.Duration {
	multiplier := 1 << (retryCount - 1)
	if multiplier > 12 {
		multiplier = 12
	}

	backoff := time.Duration(multiplier) * p.retryInterval
	if backoff > time.Hour {
		return time.Hour
	}
	return backoff
}
