package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetJob fetches the generic status snapshot for a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var out Job
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &out, nil
}

// ListJobs fetches job snapshots, optionally filtered.
func (c *Client) ListJobs(ctx context.Context, params JobListParams) (*JobList, error) {
	req := c.http.R().SetContext(ctx)
	if params.Status != "" {
		req.SetQueryParam("status", string(params.Status))
	}
	if params.JobType != "" {
		req.SetQueryParam("job_type", params.JobType)
	}
	if params.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(params.Limit))
	}
	var out JobList
	_, err := req.SetResult(&out).Get("/jobs")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return &out, nil
}

// CancelJob asks the backend to cancel a running job. Cancellation is
// asynchronous; poll the job afterwards to observe the resulting state.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	_, err := c.http.R().
		SetContext(ctx).
		Delete("/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// GetJobByTicket looks up the job most recently created for a ticket key.
func (c *Client) GetJobByTicket(ctx context.Context, ticketKey string) (*Job, error) {
	var out Job
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/jobs/ticket/" + url.PathEscape(ticketKey))
	if err != nil {
		return nil, fmt.Errorf("get job for ticket %s: %w", ticketKey, err)
	}
	return &out, nil
}

// CheckHealth probes the backend health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var out Health
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &out, nil
}

// CreateDraftPR submits a new draft-PR pipeline job. The pipeline always
// runs asynchronously; the response names the job to poll.
func (c *Client) CreateDraftPR(ctx context.Context, req CreateDraftPRRequest) (*Accepted, error) {
	var out Accepted
	_, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/draft-pr/create")
	if err != nil {
		return nil, fmt.Errorf("create draft PR: %w", err)
	}
	return &out, nil
}

// GetDraftPRJob fetches the rich draft-PR snapshot (stage, plan versions).
func (c *Client) GetDraftPRJob(ctx context.Context, jobID string) (*DraftPRJob, error) {
	var out DraftPRJob
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return nil, fmt.Errorf("get draft PR job %s: %w", jobID, err)
	}
	return &out, nil
}

// GetLatestPlan fetches the newest plan version with full content.
func (c *Client) GetLatestPlan(ctx context.Context, jobID string) (*PlanVersion, error) {
	var out PlanVersion
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/plan")
	if err != nil {
		return nil, fmt.Errorf("get latest plan for %s: %w", jobID, err)
	}
	return &out, nil
}

// ListPlanVersions fetches the plan revision history, oldest first.
func (c *Client) ListPlanVersions(ctx context.Context, jobID string) ([]PlanVersionSummary, error) {
	var out struct {
		JobID string               `json:"job_id"`
		Plans []PlanVersionSummary `json:"plans"`
	}
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/plans")
	if err != nil {
		return nil, fmt.Errorf("list plan versions for %s: %w", jobID, err)
	}
	return out.Plans, nil
}

// GetPlanVersion fetches one plan version with full content.
func (c *Client) GetPlanVersion(ctx context.Context, jobID string, version int) (*PlanVersion, error) {
	var out PlanVersion
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/plans/" + strconv.Itoa(version))
	if err != nil {
		return nil, fmt.Errorf("get plan v%d for %s: %w", version, jobID, err)
	}
	return &out, nil
}

// ApprovePlan approves the plan identified by its content hash. The backend
// answers 409 when the plan changed since the client last read it.
func (c *Client) ApprovePlan(ctx context.Context, jobID, planHash string) (*ApproveResult, error) {
	var out ApproveResult
	_, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"plan_hash": planHash}).
		SetResult(&out).
		Post("/draft-pr/jobs/" + url.PathEscape(jobID) + "/approve")
	if err != nil {
		return nil, fmt.Errorf("approve plan for %s: %w", jobID, err)
	}
	return &out, nil
}

// RevisePlan asks the backend to produce a new plan version from feedback.
// The backend answers 400 when the plan is already approved.
func (c *Client) RevisePlan(ctx context.Context, jobID string, req RevisePlanRequest) (*ReviseResult, error) {
	var out ReviseResult
	_, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/draft-pr/jobs/" + url.PathEscape(jobID) + "/revise-plan")
	if err != nil {
		return nil, fmt.Errorf("revise plan for %s: %w", jobID, err)
	}
	return &out, nil
}

// ComparePlans fetches the diff between two plan versions.
func (c *Client) ComparePlans(ctx context.Context, jobID string, fromVersion, toVersion int, format CompareFormat) (*PlanComparison, error) {
	if format == "" {
		format = FormatSummary
	}
	var out PlanComparison
	_, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from_version": strconv.Itoa(fromVersion),
			"to_version":   strconv.Itoa(toVersion),
			"format":       string(format),
		}).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/plans/compare")
	if err != nil {
		return nil, fmt.Errorf("compare plans v%d..v%d for %s: %w", fromVersion, toVersion, jobID, err)
	}
	return &out, nil
}

// ListArtifacts fetches the artifact names recorded for a job.
func (c *Client) ListArtifacts(ctx context.Context, jobID string) ([]string, error) {
	var out struct {
		Artifacts []string `json:"artifacts"`
	}
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/artifacts")
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", jobID, err)
	}
	return out.Artifacts, nil
}

// GetArtifact fetches the raw content of one artifact.
func (c *Client) GetArtifact(ctx context.Context, jobID, artifact string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/artifacts/" + url.PathEscape(artifact))
	if err != nil {
		return nil, fmt.Errorf("get artifact %s for %s: %w", artifact, jobID, err)
	}
	return resp.Body(), nil
}

// GetArtifactMetadata fetches the best-effort metadata for one artifact.
func (c *Client) GetArtifactMetadata(ctx context.Context, jobID, artifact string) (*ArtifactMetadata, error) {
	var out ArtifactMetadata
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/artifacts/" + url.PathEscape(artifact) + "/metadata")
	if err != nil {
		return nil, fmt.Errorf("get metadata for %s/%s: %w", jobID, artifact, err)
	}
	return &out, nil
}

// RetryDraftPRJob restarts a failed draft-PR job.
func (c *Client) RetryDraftPRJob(ctx context.Context, jobID string, req RetryJobRequest) (*Accepted, error) {
	var out Accepted
	_, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/draft-pr/jobs/" + url.PathEscape(jobID) + "/retry")
	if err != nil {
		return nil, fmt.Errorf("retry draft PR job %s: %w", jobID, err)
	}
	return &out, nil
}

// GetJobProgress fetches the per-stage progress report.
func (c *Client) GetJobProgress(ctx context.Context, jobID string) (*Progress, error) {
	var out Progress
	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/draft-pr/jobs/" + url.PathEscape(jobID) + "/progress")
	if err != nil {
		return nil, fmt.Errorf("get progress for %s: %w", jobID, err)
	}
	return &out, nil
}
