package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	user, pass string
}

func (s staticCreds) Credentials() (string, string, bool) {
	return s.user, s.pass, s.user != ""
}

func TestBasicAuthAttached(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Health{Status: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithCredentials(staticCreds{user: "alice", pass: "s3cret"}))
	_, err := c.CheckHealth(context.Background())
	require.NoError(t, err)

	assert.True(t, gotOK)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "s3cret", gotPass)
}

func TestNoCredentialsNoHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, sawAuth = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Health{Status: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestUnauthorizedFiresSubscribers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad credentials"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	fired := 0
	c.OnAuthInvalidated(func() { fired++ })
	c.OnAuthInvalidated(func() { fired++ })

	_, err := c.GetJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "bad credentials", AsError(err).Detail)
	assert.Equal(t, 2, fired)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, IsNotFound},
		{"unauthorized", http.StatusUnauthorized, IsUnauthorized},
		{"conflict", http.StatusConflict, IsConflict},
		{"validation", http.StatusBadRequest, IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]string{"detail": "nope"})
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			_, err := c.GetJob(context.Background(), "job-1")
			require.Error(t, err)
			assert.True(t, tc.check(err))
		})
	}
}

func TestDetailFallback(t *testing.T) {
	assert.Equal(t, "boom", Detail(&Error{StatusCode: 500, Detail: "boom"}, "fallback"))
	assert.Equal(t, "fallback", Detail(nil, "fallback"))
}

func TestGetDraftPRJobDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/draft-pr/jobs/job-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"job_id": "job-9",
			"job_type": "draft_pr",
			"status": "processing",
			"progress": {"mode": "yolo"},
			"stage": "WAITING_FOR_APPROVAL",
			"plan_versions": [
				{"version": 1, "plan_hash": "aaa"},
				{"version": 2, "plan_hash": "bbb"}
			],
			"approved_plan_hash": ""
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	job, err := c.GetDraftPRJob(context.Background(), "job-9")
	require.NoError(t, err)

	assert.Equal(t, StageWaitingForApproval, job.Stage)
	require.NotNil(t, job.LatestPlan())
	assert.Equal(t, 2, job.LatestPlan().Version)
	assert.Equal(t, "bbb", job.LatestPlan().Hash)
	assert.True(t, job.YoloMode())
}

func TestComparePlansQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("from_version"))
		assert.Equal(t, "3", q.Get("to_version"))
		assert.Equal(t, "unified", q.Get("format"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PlanComparison{FromVersion: 1, ToVersion: 3, UnifiedDiff: "-a\n+b"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	cmp, err := c.ComparePlans(context.Background(), "job-1", 1, 3, FormatUnified)
	require.NoError(t, err)
	assert.Equal(t, "-a\n+b", cmp.UnifiedDiff)
}

func TestApprovePlanConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "stale-hash", body["plan_hash"])
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "plan has changed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ApprovePlan(context.Background(), "job-1", "stale-hash")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestParseSubmitResponse(t *testing.T) {
	out, err := ParseSubmitResponse([]byte(`{"job_id":"j1","status":"started","status_url":"/jobs/j1","message":"queued"}`))
	require.NoError(t, err)
	accepted, ok := out.(*Accepted)
	require.True(t, ok)
	assert.Equal(t, "j1", accepted.JobID)

	out, err = ParseSubmitResponse([]byte(`{"ticket_key":"PROJ-1","description":"done"}`))
	require.NoError(t, err)
	_, ok = out.(*Completed)
	assert.True(t, ok)

	// job_id alone is not enough to classify as accepted
	out, err = ParseSubmitResponse([]byte(`{"job_id":"j1","result":"ok"}`))
	require.NoError(t, err)
	_, ok = out.(*Completed)
	assert.True(t, ok)

	_, err = ParseSubmitResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestJobStatusHelpers(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Active(), s)
	}
	for _, s := range []JobStatus{JobStatusStarted, JobStatusProcessing} {
		assert.False(t, s.Terminal(), s)
		assert.True(t, s.Active(), s)
	}
}
