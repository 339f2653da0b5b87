// Package inference waits for server-side inference jobs to finish.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/alm/internal/logging"
	"github.com/me/alm/pkg/model"
)

// Fetcher reads the current state of a job.
type Fetcher interface {
	GetInferenceResult(ctx context.Context, jobID string) (*model.InferenceJob, error)
}

// UnknownStatusPolicy decides what a status outside the known set means.
type UnknownStatusPolicy int

const (
	// ContinueOnUnknown treats unknown statuses as non-terminal, which
	// tolerates statuses added by newer servers.
	ContinueOnUnknown UnknownStatusPolicy = iota
	// FailOnUnknown aborts the poll with *model.UnknownStatusError.
	FailOnUnknown
)

// Default polling budget.
const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 2 * time.Second
)

// Config bounds a poll.
type Config struct {
	// MaxAttempts is the number of fetches before giving up.
	MaxAttempts int
	// Interval is the wait between two fetches.
	Interval time.Duration
	// UnknownStatus selects the handling of unrecognized statuses.
	UnknownStatus UnknownStatusPolicy
	// Deadline optionally bounds the whole poll in wall-clock time.
	Deadline time.Duration
	// OnStatus, if set, observes every fetched job.
	OnStatus func(attempt int, job *model.InferenceJob)
}

// DefaultConfig returns 60 attempts two seconds apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
	}
}

// Poller repeatedly fetches a job until it is terminal or the budget is spent.
type Poller struct {
	fetch  Fetcher
	cfg    Config
	logger *slog.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller over fetch. Non-positive MaxAttempts falls
// back to the default.
func NewPoller(fetch Fetcher, cfg Config, logger *slog.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Poller{
		fetch:  fetch,
		cfg:    cfg,
		logger: logging.Component(logger, "inference-poller"),
		wait:   sleep,
	}
}

// Poll fetches jobID until it reaches completed or failed and returns that
// last observation. After MaxAttempts non-terminal observations it returns
// *model.PollingTimeoutError; the job itself is left running on the server.
// Cancelling ctx abandons the poll.
func (p *Poller) Poll(ctx context.Context, jobID string) (*model.InferenceJob, error) {
	pollCtx := ctx
	if p.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.cfg.Deadline)
		defer cancel()
	}
	deadlineHit := func() bool {
		return ctx.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded)
	}

	logger := p.logger.With("job_id", jobID)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		job, err := p.fetch.GetInferenceResult(pollCtx, jobID)
		if err != nil {
			if deadlineHit() {
				return nil, &model.PollingTimeoutError{JobID: jobID, Attempts: attempt}
			}
			return nil, fmt.Errorf("poll inference job %s: %w", jobID, err)
		}

		logger.Debug("poll", "attempt", attempt, "status", job.Status)
		if p.cfg.OnStatus != nil {
			p.cfg.OnStatus(attempt, job)
		}

		if job.Status.IsTerminal() {
			return job, nil
		}
		if !job.Status.Known() {
			if p.cfg.UnknownStatus == FailOnUnknown {
				return nil, &model.UnknownStatusError{JobID: jobID, Status: job.Status}
			}
			logger.Warn("unknown job status, still polling", "status", job.Status)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := p.wait(pollCtx, p.cfg.Interval); err != nil {
			if deadlineHit() {
				return nil, &model.PollingTimeoutError{JobID: jobID, Attempts: attempt}
			}
			return nil, err
		}
	}

	logger.Warn("giving up on job", "attempts", p.cfg.MaxAttempts)
	return nil, &model.PollingTimeoutError{JobID: jobID, Attempts: p.cfg.MaxAttempts}
}

// sleep waits d or until ctx is done, without blocking other goroutines.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
