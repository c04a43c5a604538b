// Package draftpr layers plan-version awareness, approval/revision, and
// auto-approval on top of the generic job poller.
package draftpr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/notify"
	"github.com/ticketops/tickctl/internal/poller"
)

// API is the slice of the backend client the controller needs beyond the
// base poller.
type API interface {
	poller.API
	GetDraftPRJob(ctx context.Context, jobID string) (*api.DraftPRJob, error)
	ApprovePlan(ctx context.Context, jobID, planHash string) (*api.ApproveResult, error)
	RevisePlan(ctx context.Context, jobID string, req api.RevisePlanRequest) (*api.ReviseResult, error)
}

// DecisionRecorder receives an audit record for every state-mutating
// decision the controller makes. Optional.
type DecisionRecorder interface {
	Record(action string, inputs any, outcome, jobID, details string) error
}

// Options configures a Controller.
type Options struct {
	Interval time.Duration
	// Yolo forces auto-approval locally, in addition to the mode the
	// backend reports on the job itself.
	Yolo           bool
	OnComplete     func(job *api.Job)
	OnError        func(err error)
	OnStatusChange func(status api.JobStatus)
	Recorder       DecisionRecorder
}

// Controller reconciles a rich draft-PR snapshot (stage, plan versions)
// with the base poller's lifecycle and implements the approval workflow.
// The rich snapshot is fetched independently so the generic job shape
// stays free of draft-PR fields.
type Controller struct {
	client   API
	notifier notify.Notifier
	opts     Options
	poller   *poller.Poller

	mu            sync.Mutex
	jobID         string
	snapshot      *api.DraftPRJob
	lastStage     api.PipelineStage
	isApproving   bool
	isRevising    bool
	autoAttempted bool
	ctx           context.Context
}

// New creates a controller for the given draft-PR job.
func New(client API, notifier notify.Notifier, jobID string, opts Options) *Controller {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	c := &Controller{
		client:   client,
		notifier: notifier,
		opts:     opts,
		jobID:    jobID,
		ctx:      context.Background(),
	}
	c.poller = poller.New(client, notifier, jobID, poller.Options{
		Interval:   opts.Interval,
		OnComplete: c.onComplete,
		OnError:    opts.OnError,
		OnStatusChange: func(status api.JobStatus) {
			// The generic status moved; the stage may have moved with it.
			c.refreshSnapshot(c.context())
			if opts.OnStatusChange != nil {
				opts.OnStatusChange(status)
			}
		},
	})
	return c
}

// Poller exposes the underlying base poller.
func (c *Controller) Poller() *poller.Poller { return c.poller }

// Snapshot returns the most recent rich snapshot, or nil.
func (c *Controller) Snapshot() *api.DraftPRJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Stage returns the current pipeline stage, or "".
func (c *Controller) Stage() api.PipelineStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return ""
	}
	return c.snapshot.Stage
}

// PlanVersions returns the revision history, oldest first.
func (c *Controller) PlanVersions() []api.PlanVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.PlanVersions
}

// LatestPlan returns the newest plan version, or nil.
func (c *Controller) LatestPlan() *api.PlanVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.LatestPlan()
}

// ApprovedPlanHash returns the approved hash, or "".
func (c *Controller) ApprovedPlanHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return ""
	}
	return c.snapshot.ApprovedPlanHash
}

// YoloMode reports whether auto-approval is in effect, either forced
// locally or reported by the backend on the job.
func (c *Controller) YoloMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yoloLocked()
}

func (c *Controller) yoloLocked() bool {
	if c.opts.Yolo {
		return true
	}
	return c.snapshot != nil && c.snapshot.YoloMode()
}

// PRURL returns the pull-request URL once the job completed, or "".
func (c *Controller) PRURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return ""
	}
	return c.snapshot.PRURL()
}

// ErrorMessage returns the backend-reported job error, or "".
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return ""
	}
	return c.snapshot.Error
}

// IsApproving reports whether an approval request is in flight.
func (c *Controller) IsApproving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isApproving
}

// IsRevising reports whether a revision request is in flight.
func (c *Controller) IsRevising() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRevising
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// Start fetches the rich snapshot, which also evaluates auto-approval,
// and then starts the base polling loop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.refreshSnapshot(ctx)
	c.poller.Start(ctx)
}

// Stop halts the base polling loop.
func (c *Controller) Stop() { c.poller.Stop() }

// Cancel delegates to the base poller's cancel flow.
func (c *Controller) Cancel(ctx context.Context) error { return c.poller.Cancel(ctx) }

// Refresh refetches both the rich snapshot and the base snapshot.
func (c *Controller) Refresh(ctx context.Context) {
	c.refreshSnapshot(ctx)
	c.poller.Refresh(ctx)
}

func (c *Controller) onComplete(job *api.Job) {
	c.refreshSnapshot(c.context())
	if c.opts.OnComplete != nil {
		c.opts.OnComplete(job)
	}
}

// refreshSnapshot refetches the rich snapshot and reacts to stage
// transitions. Fetch failures are logged only; the next poll retries.
func (c *Controller) refreshSnapshot(ctx context.Context) {
	c.mu.Lock()
	jobID := c.jobID
	c.mu.Unlock()
	if jobID == "" {
		return
	}

	job, err := c.client.GetDraftPRJob(ctx, jobID)
	if err != nil {
		slog.Error("failed to refresh draft PR job", "job_id", jobID, "error", err)
		return
	}

	c.mu.Lock()
	prevStage := c.lastStage
	c.snapshot = job
	c.lastStage = job.Stage
	entered := prevStage != job.Stage && job.Stage == api.StageWaitingForApproval
	if prevStage != job.Stage {
		// One auto-approval attempt per waiting episode: the guard re-arms
		// on every stage transition, entering or leaving.
		c.autoAttempted = false
	}
	c.mu.Unlock()

	if entered {
		c.maybeAutoApprove(ctx)
	}
}

// maybeAutoApprove fires a single approval attempt when yolo mode is on,
// the job waits for approval, a hashed plan exists, and nothing has been
// approved yet.
func (c *Controller) maybeAutoApprove(ctx context.Context) {
	c.mu.Lock()
	ok := c.yoloLocked() &&
		c.snapshot != nil &&
		c.snapshot.Stage == api.StageWaitingForApproval &&
		c.snapshot.ApprovedPlanHash == "" &&
		!c.autoAttempted &&
		!c.isApproving
	var hash string
	var version int
	if ok {
		latest := c.snapshot.LatestPlan()
		if latest == nil || latest.Hash == "" {
			ok = false
		} else {
			hash = latest.Hash
			version = latest.Version
		}
	}
	if ok {
		c.autoAttempted = true
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	notify.Info(c.notifier, fmt.Sprintf("YOLO mode: auto-approving plan v%d", version))
	if _, err := c.Approve(ctx, hash); err != nil {
		slog.Warn("auto-approval failed", "job_id", c.jobID, "error", err)
	}
}

// Approve approves the plan identified by planHash. A second call while
// one is in flight is a no-op. A 409 means the plan changed since it was
// read; the snapshot is refreshed so the caller sees the newest version.
func (c *Controller) Approve(ctx context.Context, planHash string) (*api.ApproveResult, error) {
	c.mu.Lock()
	jobID := c.jobID
	if jobID == "" {
		c.mu.Unlock()
		notify.Error(c.notifier, "Job ID is required")
		return nil, fmt.Errorf("approve: job id is required")
	}
	if planHash == "" {
		c.mu.Unlock()
		notify.Error(c.notifier, "Plan hash is required")
		return nil, fmt.Errorf("approve: plan hash is required")
	}
	if c.isApproving {
		c.mu.Unlock()
		return nil, nil
	}
	c.isApproving = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isApproving = false
		c.mu.Unlock()
	}()

	result, err := c.client.ApprovePlan(ctx, jobID, planHash)
	if err != nil {
		c.mu.Lock()
		// Allow another auto-approval attempt at the next opportunity.
		c.autoAttempted = false
		c.mu.Unlock()

		if api.IsConflict(err) {
			notify.Error(c.notifier, "Plan was modified during approval. Please refresh and approve the latest version.")
			c.refreshSnapshot(ctx)
		} else {
			notify.Error(c.notifier, api.Detail(err, "Failed to approve plan"))
		}
		c.record("approve_plan", map[string]string{"plan_hash": planHash}, "error", jobID, err.Error())
		return nil, err
	}

	notify.Success(c.notifier, "Plan approved! Pipeline is continuing...")
	c.record("approve_plan", map[string]string{"plan_hash": planHash}, "ok", jobID, "")

	c.refreshSnapshot(ctx)
	c.poller.Refresh(ctx)
	return result, nil
}

// Revise asks the backend for a new plan version built from feedback. A
// 400 means the plan is already approved and can no longer be revised.
func (c *Controller) Revise(ctx context.Context, feedback string) (*api.ReviseResult, error) {
	c.mu.Lock()
	jobID := c.jobID
	if jobID == "" {
		c.mu.Unlock()
		notify.Error(c.notifier, "Job ID is required")
		return nil, fmt.Errorf("revise: job id is required")
	}
	if feedback == "" {
		c.mu.Unlock()
		notify.Error(c.notifier, "Feedback is required")
		return nil, fmt.Errorf("revise: feedback is required")
	}
	if c.isRevising {
		c.mu.Unlock()
		return nil, nil
	}
	c.isRevising = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isRevising = false
		c.mu.Unlock()
	}()

	result, err := c.client.RevisePlan(ctx, jobID, api.RevisePlanRequest{Feedback: feedback})
	if err != nil {
		if api.IsValidation(err) {
			notify.Error(c.notifier, "Cannot revise plan - plan is already approved")
		} else {
			notify.Error(c.notifier, api.Detail(err, "Failed to revise plan"))
		}
		c.record("revise_plan", map[string]string{"feedback": feedback}, "error", jobID, err.Error())
		return nil, err
	}

	notify.Success(c.notifier, fmt.Sprintf("Plan revised to v%d", result.PlanVersion))
	c.record("revise_plan", map[string]string{"feedback": feedback}, "ok", jobID, result.ChangesSummary)

	c.refreshSnapshot(ctx)
	c.poller.Refresh(ctx)
	return result, nil
}

func (c *Controller) record(action string, inputs any, outcome, jobID, details string) {
	if c.opts.Recorder == nil {
		return
	}
	if err := c.opts.Recorder.Record(action, inputs, outcome, jobID, details); err != nil {
		slog.Warn("failed to record decision", "action", action, "error", err)
	}
}
