package draftpr

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/notify"
)

type fakeBackend struct {
	mu           sync.Mutex
	job          *api.Job
	rich         *api.DraftPRJob
	approveErr   error
	reviseErr    error
	richCalls    int
	approveCalls int
	reviseCalls  int
	cancelCalls  int

	// When set, ApprovePlan blocks until the channel is closed.
	approveGate chan struct{}
}

func (f *fakeBackend) GetJob(ctx context.Context, jobID string) (*api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := *f.job
	return &job, nil
}

func (f *fakeBackend) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return nil
}

func (f *fakeBackend) GetDraftPRJob(ctx context.Context, jobID string) (*api.DraftPRJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.richCalls++
	rich := *f.rich
	return &rich, nil
}

func (f *fakeBackend) ApprovePlan(ctx context.Context, jobID, planHash string) (*api.ApproveResult, error) {
	f.mu.Lock()
	gate := f.approveGate
	f.approveCalls++
	err := f.approveErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &api.ApproveResult{Approved: true, PlanHash: planHash}, nil
}

func (f *fakeBackend) RevisePlan(ctx context.Context, jobID string, req api.RevisePlanRequest) (*api.ReviseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviseCalls++
	if f.reviseErr != nil {
		return nil, f.reviseErr
	}
	return &api.ReviseResult{PlanVersion: 2, PlanHash: "new-hash", ChangesSummary: "tightened scope"}, nil
}

func (f *fakeBackend) setRich(rich *api.DraftPRJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rich = rich
}

func (f *fakeBackend) counts() (rich, approve, revise int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.richCalls, f.approveCalls, f.reviseCalls
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, n)
}

func (r *recordingNotifier) bySeverity(sev notify.Severity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.messages {
		if n.Severity == sev {
			out = append(out, n.Message)
		}
	}
	return out
}

type recordingDecisions struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingDecisions) Record(action string, inputs any, outcome, jobID, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, action+":"+outcome)
	return nil
}

func waitingJob(mode string, versions ...api.PlanVersion) *api.DraftPRJob {
	job := &api.DraftPRJob{
		Job: api.Job{
			JobID:  "job-42",
			Status: api.JobStatusProcessing,
		},
		Stage:        api.StageWaitingForApproval,
		PlanVersions: versions,
	}
	if mode != "" {
		job.Job.Progress = map[string]json.RawMessage{"mode": json.RawMessage(`"` + mode + `"`)}
	}
	return job
}

func plan(version int, hash string) api.PlanVersion {
	return api.PlanVersion{Version: version, Hash: hash, Content: json.RawMessage(`"# Plan"`)}
}

func newController(backend *fakeBackend, notifier *recordingNotifier, opts Options) *Controller {
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Millisecond
	}
	return New(backend, notifier, "job-42", opts)
}

func TestApproveSuccess(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	decisions := &recordingDecisions{}
	c := newController(backend, notifier, Options{Recorder: decisions})

	result, err := c.Approve(context.Background(), "aaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.Approved {
		t.Fatalf("expected approved result, got %+v", result)
	}

	rich, approve, _ := backend.counts()
	if approve != 1 {
		t.Fatalf("expected 1 approve call, got %d", approve)
	}
	if rich != 1 {
		t.Fatalf("expected snapshot refresh after approval, got %d fetches", rich)
	}
	if got := notifier.bySeverity(notify.SeveritySuccess); len(got) != 1 {
		t.Fatalf("expected 1 success notification, got %v", got)
	}
	decisions.mu.Lock()
	defer decisions.mu.Unlock()
	if len(decisions.entries) != 1 || decisions.entries[0] != "approve_plan:ok" {
		t.Fatalf("unexpected decision log: %v", decisions.entries)
	}
}

func TestApproveRequiresHash(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	if _, err := c.Approve(context.Background(), ""); err == nil {
		t.Fatal("expected validation error")
	}
	if _, approve, _ := backend.counts(); approve != 0 {
		t.Fatalf("expected no approve calls, got %d", approve)
	}
	if got := notifier.bySeverity(notify.SeverityError); len(got) != 1 {
		t.Fatalf("expected 1 error notification, got %v", got)
	}
}

func TestApproveConflictRefreshesSnapshot(t *testing.T) {
	backend := &fakeBackend{
		job:        &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich:       waitingJob("", plan(1, "aaa")),
		approveErr: &api.Error{StatusCode: 409, Detail: "plan hash mismatch"},
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	if _, err := c.Approve(context.Background(), "aaa"); err == nil {
		t.Fatal("expected conflict error")
	}

	rich, _, _ := backend.counts()
	if rich != 1 {
		t.Fatalf("expected snapshot refresh after conflict, got %d fetches", rich)
	}
	errs := notifier.bySeverity(notify.SeverityError)
	if len(errs) != 1 || errs[0] != "Plan was modified during approval. Please refresh and approve the latest version." {
		t.Fatalf("unexpected error notifications: %v", errs)
	}
}

func TestApproveSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		job:         &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich:        waitingJob("", plan(1, "aaa")),
		approveGate: gate,
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Approve(context.Background(), "aaa")
	}()

	deadline := time.After(time.Second)
	for !c.IsApproving() {
		select {
		case <-deadline:
			t.Fatal("first approval never started")
		case <-time.After(time.Millisecond):
		}
	}

	result, err := c.Approve(context.Background(), "aaa")
	if result != nil || err != nil {
		t.Fatalf("expected concurrent approve to be a no-op, got %v, %v", result, err)
	}

	close(gate)
	<-done

	if _, approve, _ := backend.counts(); approve != 1 {
		t.Fatalf("expected 1 approve call, got %d", approve)
	}
}

func TestReviseAlreadyApproved(t *testing.T) {
	backend := &fakeBackend{
		job:       &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich:      waitingJob("", plan(1, "aaa")),
		reviseErr: &api.Error{StatusCode: 400, Detail: "plan already approved"},
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	if _, err := c.Revise(context.Background(), "please split the migration"); err == nil {
		t.Fatal("expected error")
	}
	errs := notifier.bySeverity(notify.SeverityError)
	if len(errs) != 1 || errs[0] != "Cannot revise plan - plan is already approved" {
		t.Fatalf("unexpected error notifications: %v", errs)
	}
}

func TestReviseSuccess(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	result, err := c.Revise(context.Background(), "please split the migration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PlanVersion != 2 {
		t.Fatalf("expected plan version 2, got %d", result.PlanVersion)
	}
	got := notifier.bySeverity(notify.SeveritySuccess)
	if len(got) != 1 || got[0] != "Plan revised to v2" {
		t.Fatalf("unexpected success notifications: %v", got)
	}
}

func TestReviseRequiresFeedback(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	if _, err := c.Revise(context.Background(), ""); err == nil {
		t.Fatal("expected validation error")
	}
	if _, _, revise := backend.counts(); revise != 0 {
		t.Fatalf("expected no revise calls, got %d", revise)
	}
}

func TestYoloAutoApprovesOnce(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("yolo", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	if _, approve, _ := backend.counts(); approve != 1 {
		t.Fatalf("expected exactly 1 auto-approval, got %d", approve)
	}

	// Still waiting, same plan: the guard must hold.
	c.Refresh(ctx)
	if _, approve, _ := backend.counts(); approve != 1 {
		t.Fatalf("guard did not hold, got %d approve calls", approve)
	}
}

func TestYoloGuardReArmsOnStageTransition(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("yolo", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	// Pipeline moves on, then parks on a second approval round.
	revising := waitingJob("yolo", plan(1, "aaa"), plan(2, "bbb"))
	revising.Stage = api.StageRevising
	backend.setRich(revising)
	c.Refresh(ctx)

	waitingAgain := waitingJob("yolo", plan(1, "aaa"), plan(2, "bbb"))
	backend.setRich(waitingAgain)
	c.Refresh(ctx)

	if _, approve, _ := backend.counts(); approve != 2 {
		t.Fatalf("expected a second auto-approval after re-entering the approval stage, got %d", approve)
	}
}

func TestYoloSkipsWhenAlreadyApproved(t *testing.T) {
	rich := waitingJob("yolo", plan(1, "aaa"))
	rich.ApprovedPlanHash = "aaa"
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: rich,
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	if _, approve, _ := backend.counts(); approve != 0 {
		t.Fatalf("expected no auto-approval for an approved plan, got %d", approve)
	}
}

func TestYoloFailureReArmsGuard(t *testing.T) {
	backend := &fakeBackend{
		job:        &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich:       waitingJob("yolo", plan(1, "aaa")),
		approveErr: &api.Error{StatusCode: 500, Detail: "backend exploded"},
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	if _, approve, _ := backend.counts(); approve != 1 {
		t.Fatalf("expected 1 failed attempt, got %d", approve)
	}

	// After the failure the guard is re-armed: entering the approval stage
	// again must produce another attempt.
	planning := waitingJob("yolo", plan(1, "aaa"))
	planning.Stage = api.StagePlanning
	backend.setRich(planning)
	c.Refresh(ctx)
	backend.setRich(waitingJob("yolo", plan(1, "aaa")))
	c.Refresh(ctx)

	if _, approve, _ := backend.counts(); approve != 2 {
		t.Fatalf("expected a retry after re-entering the approval stage, got %d", approve)
	}
}

func TestForcedYoloOption(t *testing.T) {
	backend := &fakeBackend{
		job:  &api.Job{JobID: "job-42", Status: api.JobStatusProcessing},
		rich: waitingJob("", plan(1, "aaa")),
	}
	notifier := &recordingNotifier{}
	c := newController(backend, notifier, Options{Yolo: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	if _, approve, _ := backend.counts(); approve != 1 {
		t.Fatalf("expected auto-approval with the local override, got %d", approve)
	}
}
