// Package api provides the typed HTTP client for the ticket-automation backend.
package api

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a backend job.
type JobStatus string

const (
	JobStatusStarted    JobStatus = "started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is final and will never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the job can still be cancelled.
func (s JobStatus) Active() bool {
	return s == JobStatusStarted || s == JobStatusProcessing
}

// Job is a read-only snapshot of an asynchronous backend job. The backend
// owns all job state; the client never mutates a snapshot.
type Job struct {
	JobID             string                     `json:"job_id"`
	JobType           string                     `json:"job_type"`
	Status            JobStatus                  `json:"status"`
	Progress          map[string]json.RawMessage `json:"progress"`
	Results           json.RawMessage            `json:"results,omitempty"`
	StartedAt         time.Time                  `json:"started_at"`
	CompletedAt       *time.Time                 `json:"completed_at,omitempty"`
	TotalTickets      *int                       `json:"total_tickets,omitempty"`
	ProcessedTickets  int                        `json:"processed_tickets"`
	SuccessfulTickets int                        `json:"successful_tickets"`
	FailedTickets     int                        `json:"failed_tickets"`
	Error             string                     `json:"error,omitempty"`
	TicketKey         string                     `json:"ticket_key,omitempty"`
	TicketKeys        []string                   `json:"ticket_keys,omitempty"`
}

// JobList is the response of the job listing endpoint.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// JobListParams filters the job listing endpoint.
type JobListParams struct {
	Status  JobStatus
	JobType string
	Limit   int
}

// PipelineStage is a draft-PR job's position in its multi-step pipeline.
type PipelineStage string

const (
	StagePlanning           PipelineStage = "PLANNING"
	StageApplying           PipelineStage = "APPLYING"
	StageVerifying          PipelineStage = "VERIFYING"
	StageWaitingForApproval PipelineStage = "WAITING_FOR_APPROVAL"
	StageRevising           PipelineStage = "REVISING"
	StageCompleted          PipelineStage = "COMPLETED"
	StageFailed             PipelineStage = "FAILED"
	StageCancelled          PipelineStage = "CANCELLED"
)

// PlanVersion is an immutable, hashed snapshot of a proposed change plan.
// Versions are 1-based and monotonic; the backend only ever appends.
type PlanVersion struct {
	Version int             `json:"version"`
	Hash    string          `json:"plan_hash"`
	Content json.RawMessage `json:"content,omitempty"`
}

// PlanVersionSummary is the lightweight form returned by the plan listing.
type PlanVersionSummary struct {
	Version   int       `json:"version"`
	Hash      string    `json:"plan_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftPRJob extends Job with pipeline stage and plan revision history.
// PlanVersions is always sorted by version ascending.
type DraftPRJob struct {
	Job
	Stage            PipelineStage `json:"stage"`
	PlanVersions     []PlanVersion `json:"plan_versions"`
	ApprovedPlanHash string        `json:"approved_plan_hash,omitempty"`
}

// LatestPlan returns the newest plan version, or nil when none exists yet.
func (j *DraftPRJob) LatestPlan() *PlanVersion {
	if len(j.PlanVersions) == 0 {
		return nil
	}
	return &j.PlanVersions[len(j.PlanVersions)-1]
}

// YoloMode reports whether the job runs in auto-approve mode. The backend
// records the execution mode in the progress map.
func (j *DraftPRJob) YoloMode() bool {
	raw, ok := j.Progress["mode"]
	if !ok {
		return false
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err != nil {
		return false
	}
	return mode == "yolo"
}

// PRURL extracts the pull-request URL from a completed job's results,
// or returns "" when not present.
func (j *DraftPRJob) PRURL() string {
	if len(j.Results) == 0 {
		return ""
	}
	var results struct {
		PRResults struct {
			PRURL string `json:"pr_url"`
		} `json:"pr_results"`
	}
	if err := json.Unmarshal(j.Results, &results); err != nil {
		return ""
	}
	return results.PRResults.PRURL
}

// CompareFormat selects the shape of a plan comparison payload.
type CompareFormat string

const (
	FormatSummary    CompareFormat = "summary"
	FormatStructured CompareFormat = "structured"
	FormatUnified    CompareFormat = "unified"
)

// PlanComparison is the diff between two plan versions.
type PlanComparison struct {
	FromVersion     int         `json:"from_version"`
	ToVersion       int         `json:"to_version"`
	Summary         string      `json:"summary,omitempty"`
	Changes         PlanChanges `json:"changes,omitempty"`
	ChangedSections []string    `json:"changed_sections,omitempty"`
	UnifiedDiff     string      `json:"unified_diff,omitempty"`
}

// PlanChanges itemizes the comparison result.
type PlanChanges struct {
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// ArtifactMetadata describes a single job artifact. All fields are
// best-effort; an artifact without metadata is still listed.
type ArtifactMetadata struct {
	SizeBytes int64      `json:"size_bytes,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Type      string     `json:"type,omitempty"`
}

// RepoInput points the backend at a repository to work against.
type RepoInput struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

// CreateDraftPRRequest submits a new draft-PR pipeline job.
type CreateDraftPRRequest struct {
	TicketKey         string      `json:"ticket_key"`
	Repos             []RepoInput `json:"repos,omitempty"`
	Mode              string      `json:"mode,omitempty"` // "" (normal) or "yolo"
	AdditionalContext string      `json:"additional_context,omitempty"`
}

// ApproveResult is the backend's acknowledgement of a plan approval.
type ApproveResult struct {
	Approved bool          `json:"approved"`
	PlanHash string        `json:"plan_hash"`
	Stage    PipelineStage `json:"stage"`
}

// RevisePlanRequest asks the backend for a new plan version.
type RevisePlanRequest struct {
	Feedback          string `json:"feedback"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// ReviseResult names the plan version produced by a revision.
type ReviseResult struct {
	PlanVersion    int    `json:"plan_version"`
	PlanHash       string `json:"plan_hash"`
	ChangesSummary string `json:"changes_summary"`
}

// RetryJobRequest restarts a failed draft-PR job.
type RetryJobRequest struct {
	FromStage PipelineStage `json:"from_stage,omitempty"`
}

// Progress is the per-stage progress report for a draft-PR job.
type Progress struct {
	JobID        string        `json:"job_id"`
	Stage        PipelineStage `json:"stage"`
	Percent      float64       `json:"percent"`
	Message      string        `json:"message,omitempty"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty"`
	StageHistory []string      `json:"stage_history,omitempty"`
}

// Health is the backend health response.
type Health struct {
	Status string `json:"status"`
}
