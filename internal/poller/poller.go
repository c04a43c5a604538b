// Package poller implements the repeating job-status fetch cycle: terminal
// detection, transient-failure retries with backoff, and cooperative
// cancellation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/notify"
)

// API is the slice of the backend client the poller needs.
type API interface {
	GetJob(ctx context.Context, jobID string) (*api.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

const (
	// DefaultInterval is the poll cadence used when Options.Interval is zero.
	DefaultInterval = 3 * time.Second
	// MaxRetries is the number of consecutive transient failures tolerated
	// before polling stops.
	MaxRetries = 3
	// MaxBackoff caps the tracked backoff interval.
	MaxBackoff = 10 * time.Second
)

// Options configures a Poller. Callbacks are optional and are invoked from
// the polling goroutine, never under the poller's lock.
type Options struct {
	Interval       time.Duration
	OnComplete     func(job *api.Job)
	OnError        func(err error)
	OnStatusChange func(status api.JobStatus)
}

// Poller repeatedly fetches a job's status until it reaches a terminal
// state or an unrecoverable error. At most one fetch from its own schedule
// is in flight at a time; a fetch already in flight when Stop is called
// still resolves and its callbacks still run.
type Poller struct {
	client   API
	notifier notify.Notifier
	opts     Options

	mu              sync.Mutex
	jobID           string
	job             *api.Job
	lastError       error
	isPolling       bool
	isLoading       bool
	isCancelling    bool
	retryCount      int
	currentInterval time.Duration
	stopCh          chan struct{}
}

// New creates a poller for jobID. The job id may be replaced later via
// SetJobID; an empty id makes Start a no-op.
func New(client API, notifier notify.Notifier, jobID string, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Poller{
		client:          client,
		notifier:        notifier,
		opts:            opts,
		jobID:           jobID,
		currentInterval: opts.Interval,
	}
}

// SetJobID replaces the polled job id. An empty id stops the loop on the
// next cycle.
func (p *Poller) SetJobID(jobID string) {
	p.mu.Lock()
	p.jobID = jobID
	p.mu.Unlock()
}

// Job returns the most recent snapshot, or nil before the first fetch.
func (p *Poller) Job() *api.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// IsPolling reports whether the repeating schedule is active.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPolling
}

// IsLoading reports whether a fetch is in flight.
func (p *Poller) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isLoading
}

// IsCancelling reports whether a cancel request is in flight.
func (p *Poller) IsCancelling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isCancelling
}

// LastError returns the error of the most recent fetch, or nil.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Start performs one immediate fetch and then polls at the configured
// interval. It is a no-op when no job id is set or polling is already in
// progress. The loop stops when the job reaches a terminal state, an
// unrecoverable error occurs, Stop is called, or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.jobID == "" {
		p.mu.Unlock()
		slog.Warn("cannot start polling: no job id")
		return
	}
	if p.isPolling {
		p.mu.Unlock()
		slog.Warn("polling already in progress", "job_id", p.jobID)
		return
	}
	p.isPolling = true
	p.retryCount = 0
	p.currentInterval = p.opts.Interval
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	p.poll(ctx)

	p.mu.Lock()
	if !p.isPolling {
		// The immediate fetch already reached a terminal state.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	go func() {
		// Fixed cadence. The backoff value grown on transient failures is
		// tracked but the running ticker is not rescheduled with it; the
		// interval resets on the next Start.
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				p.Stop()
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

// Stop cancels the repeating schedule. Safe to call from any state.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
}

func (p *Poller) stopLocked() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	p.isPolling = false
	p.retryCount = 0
	p.currentInterval = p.opts.Interval
}

// Refresh performs a single manual fetch outside the schedule.
func (p *Poller) Refresh(ctx context.Context) {
	p.poll(ctx)
}

// Cancel requests backend cancellation of the polled job. Jobs that are not
// in an active state are rejected locally with a warning and no request.
func (p *Poller) Cancel(ctx context.Context) error {
	p.mu.Lock()
	jobID := p.jobID
	job := p.job
	if jobID == "" || job == nil {
		p.mu.Unlock()
		slog.Warn("cancel requested without a job snapshot", "job_id", jobID)
		return nil
	}
	if !job.Status.Active() {
		p.mu.Unlock()
		notify.Warning(p.notifier, "Job cannot be cancelled in its current state")
		return nil
	}
	p.isCancelling = true
	p.mu.Unlock()

	if err := p.client.CancelJob(ctx, jobID); err != nil {
		p.mu.Lock()
		p.isCancelling = false
		p.mu.Unlock()
		notify.Error(p.notifier, api.Detail(err, "Failed to cancel job"))
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	p.Stop()
	notify.Info(p.notifier, "Job cancellation requested")

	// One more fetch so the snapshot reflects the resulting state.
	p.poll(ctx)

	p.mu.Lock()
	p.isCancelling = false
	p.mu.Unlock()
	return nil
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	jobID := p.jobID
	if jobID == "" {
		p.stopLocked()
		p.mu.Unlock()
		return
	}
	p.isLoading = true
	p.lastError = nil
	p.mu.Unlock()

	job, err := p.client.GetJob(ctx, jobID)
	if err != nil {
		p.handleFetchError(jobID, err)
		return
	}

	p.mu.Lock()
	p.isLoading = false
	prev := p.job
	p.job = job
	p.retryCount = 0
	p.currentInterval = p.opts.Interval
	statusChanged := prev != nil && prev.Status != job.Status
	terminal := job.Status.Terminal()
	if terminal {
		p.stopLocked()
	}
	p.mu.Unlock()

	if statusChanged && p.opts.OnStatusChange != nil {
		p.opts.OnStatusChange(job.Status)
	}
	if !terminal {
		return
	}

	switch job.Status {
	case api.JobStatusCompleted:
		notify.Success(p.notifier, "Job completed successfully")
		if p.opts.OnComplete != nil {
			p.opts.OnComplete(job)
		}
	case api.JobStatusFailed:
		msg := job.Error
		if msg == "" {
			msg = "Job failed"
		}
		notify.Error(p.notifier, "Job failed: "+msg)
		if p.opts.OnError != nil {
			p.opts.OnError(errors.New(msg))
		}
	case api.JobStatusCancelled:
		notify.Info(p.notifier, "Job cancelled")
	}
}

func (p *Poller) handleFetchError(jobID string, err error) {
	p.mu.Lock()
	p.isLoading = false
	p.lastError = err

	var message string
	reportErr := false

	switch {
	case api.IsNotFound(err):
		p.stopLocked()
		message = "Job not found"
		reportErr = true
	case api.IsUnauthorized(err):
		p.stopLocked()
		message = "Authentication required"
		reportErr = true
	default:
		p.retryCount++
		if p.retryCount < MaxRetries {
			p.currentInterval = min(p.currentInterval*2, MaxBackoff)
			attempt := p.retryCount
			p.mu.Unlock()
			slog.Warn("polling failed, will retry",
				"job_id", jobID, "attempt", attempt, "max", MaxRetries, "error", err)
			return
		}
		p.stopLocked()
		message = "Failed to poll job status"
		reportErr = true
	}
	p.mu.Unlock()

	notify.Error(p.notifier, message)
	if reportErr && p.opts.OnError != nil {
		p.opts.OnError(err)
	}
}
