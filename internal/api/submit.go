package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// Submission endpoints answer with one of two shapes: the finished result
// when the backend ran synchronously, or a job handle when the work was
// queued. The shapes share no discriminant field, so the distinction is
// made by a validated parse here rather than duck typing at call sites.

// SubmitOutcome is either *Accepted or *Completed.
type SubmitOutcome interface {
	isSubmitOutcome()
}

// Accepted means the backend queued an asynchronous job; poll StatusURL
// (or JobID via GetJob) for progress.
type Accepted struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	StatusURL  string `json:"status_url"`
	SafetyNote string `json:"safety_note,omitempty"`
}

func (*Accepted) isSubmitOutcome() {}

// Completed means the backend ran the request synchronously; Raw holds the
// operation-specific result payload.
type Completed struct {
	Raw json.RawMessage
}

func (*Completed) isSubmitOutcome() {}

// ParseSubmitResponse classifies a submission response body. A body is an
// Accepted job iff it carries both job_id and status_url; anything else
// that decodes as a JSON object is a synchronous result.
func ParseSubmitResponse(body []byte) (SubmitOutcome, error) {
	var probe struct {
		JobID     string `json:"job_id"`
		StatusURL string `json:"status_url"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("parse submit response: %w", err)
	}
	if probe.JobID != "" && probe.StatusURL != "" {
		var accepted Accepted
		if err := json.Unmarshal(body, &accepted); err != nil {
			return nil, fmt.Errorf("parse accepted job: %w", err)
		}
		return &accepted, nil
	}
	return &Completed{Raw: json.RawMessage(body)}, nil
}

// GenerateTicketRequest asks the backend to draft a description for one
// ticket. Generation runs in preview mode; the backend decides whether to
// answer synchronously or queue a job.
type GenerateTicketRequest struct {
	TicketKey         string      `json:"ticket_key"`
	AdditionalContext string      `json:"additional_context,omitempty"`
	AsyncMode         bool        `json:"async_mode"`
	Repos             []RepoInput `json:"repos,omitempty"`
	UpdateJira        bool        `json:"update_jira"`
}

// GenerateTicket submits a single-ticket generation request. Requests that
// carry repos always run asynchronously.
func (c *Client) GenerateTicket(ctx context.Context, req GenerateTicketRequest) (SubmitOutcome, error) {
	req.UpdateJira = false // preview only
	if len(req.Repos) > 0 {
		req.AsyncMode = true
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/generate/single")
	if err != nil {
		return nil, fmt.Errorf("generate ticket %s: %w", req.TicketKey, err)
	}
	return ParseSubmitResponse(resp.Body())
}
