package artifacts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ticketops/tickctl/internal/api"
)

type fakeBackend struct {
	mu            sync.Mutex
	names         []string
	listErr       error
	metadata      map[string]*api.ArtifactMetadata
	failing       map[string]bool
	metadataCalls map[string]int
}

func (f *fakeBackend) ListArtifacts(ctx context.Context, jobID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.names...), nil
}

func (f *fakeBackend) GetArtifactMetadata(ctx context.Context, jobID, artifact string) (*api.ArtifactMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataCalls == nil {
		f.metadataCalls = make(map[string]int)
	}
	f.metadataCalls[artifact]++
	if f.failing[artifact] {
		return nil, errors.New("metadata unavailable")
	}
	meta, ok := f.metadata[artifact]
	if !ok {
		return &api.ArtifactMetadata{}, nil
	}
	copied := *meta
	return &copied, nil
}

func (f *fakeBackend) calls(artifact string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls[artifact]
}

func meta(size int64, at time.Time) *api.ArtifactMetadata {
	return &api.ArtifactMetadata{SizeBytes: size, CreatedAt: &at}
}

func TestLoadFetchesAllMetadata(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		names: []string{"plan_v1", "git_diff", "validation_logs"},
		metadata: map[string]*api.ArtifactMetadata{
			"plan_v1":         meta(100, base),
			"git_diff":        meta(2048, base.Add(time.Hour)),
			"validation_logs": meta(512, base.Add(2 * time.Hour)),
		},
	}
	r := New(backend, "job-42")

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(r.Names()); got != 3 {
		t.Fatalf("expected 3 artifacts, got %d", got)
	}
	for _, name := range backend.names {
		if r.Metadata(name) == nil {
			t.Fatalf("expected metadata for %s", name)
		}
	}
}

func TestLoadRequiresJobID(t *testing.T) {
	r := New(&fakeBackend{}, "  ")
	if err := r.Load(context.Background()); err == nil {
		t.Fatal("expected error for blank job id")
	}
}

func TestLoadFiltersEmptyNames(t *testing.T) {
	backend := &fakeBackend{names: []string{"plan_v1", "", "   ", "git_diff"}}
	r := New(backend, "job-42")

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Names(); len(got) != 2 {
		t.Fatalf("expected empty names to be dropped, got %v", got)
	}
}

func TestMetadataFailureDoesNotAbortBatch(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		names:   []string{"plan_v1", "git_diff", "validation_logs"},
		failing: map[string]bool{"git_diff": true},
		metadata: map[string]*api.ArtifactMetadata{
			"plan_v1":         meta(100, base),
			"validation_logs": meta(512, base),
		},
	}
	r := New(backend, "job-42")

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("metadata failure must not fail the load: %v", err)
	}
	if r.Metadata("git_diff") != nil {
		t.Fatal("expected no metadata for the failing artifact")
	}
	if r.Metadata("plan_v1") == nil || r.Metadata("validation_logs") == nil {
		t.Fatal("expected the other artifacts to keep their metadata")
	}

	// The failing artifact stays listed.
	if got := len(r.Names()); got != 3 {
		t.Fatalf("expected 3 artifacts, got %d", got)
	}

	s := r.Summary()
	if s.TotalCount != 3 || s.WithMetadata != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestMetadataCacheSurvivesReload(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		names:    []string{"plan_v1"},
		metadata: map[string]*api.ArtifactMetadata{"plan_v1": meta(100, base)},
	}
	r := New(backend, "job-42")

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := backend.calls("plan_v1"); got != 1 {
		t.Fatalf("expected cached metadata to be reused, got %d calls", got)
	}

	r.Reset()
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := backend.calls("plan_v1"); got != 2 {
		t.Fatalf("expected a refetch after reset, got %d calls", got)
	}
}

func TestSortingAndToggle(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		names: []string{"validation_logs", "plan_v1", "git_diff"},
		metadata: map[string]*api.ArtifactMetadata{
			"plan_v1":         meta(100, base.Add(2 * time.Hour)),
			"git_diff":        meta(2048, base),
			"validation_logs": meta(512, base.Add(time.Hour)),
		},
	}
	r := New(backend, "job-42")
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := r.Sorted()
	want := []string{"git_diff", "plan_v1", "validation_logs"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("name sort mismatch: got %v", got)
		}
	}

	// Same key again flips the direction.
	r.SetSort(SortByName)
	got = r.Sorted()
	if got[0] != "validation_logs" {
		t.Fatalf("expected descending name sort, got %v", got)
	}

	r.SetSort(SortBySize)
	got = r.Sorted()
	if got[0] != "plan_v1" || got[2] != "git_diff" {
		t.Fatalf("size sort mismatch: got %v", got)
	}

	r.SetSort(SortByDate)
	got = r.Sorted()
	if got[0] != "git_diff" || got[2] != "plan_v1" {
		t.Fatalf("date sort mismatch: got %v", got)
	}
}

func TestFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		names: []string{"plan_v1", "plan_v2", "git_diff"},
		metadata: map[string]*api.ArtifactMetadata{
			"plan_v1":  meta(100, base),
			"plan_v2":  meta(300, base.Add(time.Hour)),
			"git_diff": meta(2048, base.Add(2 * time.Hour)),
		},
	}
	r := New(backend, "job-42")
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.SetFilters(Filters{Type: "plan"})
	if got := r.Sorted(); len(got) != 2 {
		t.Fatalf("type filter mismatch: got %v", got)
	}

	minSize := int64(200)
	r.SetFilters(Filters{MinSize: &minSize})
	got := r.Sorted()
	if len(got) != 1 || got[0] != "plan_v2" {
		t.Fatalf("combined filter mismatch: got %v", got)
	}

	r.ClearFilters()
	if got := r.Sorted(); len(got) != 3 {
		t.Fatalf("expected all artifacts after clearing filters, got %v", got)
	}
}

func TestSummaryCategories(t *testing.T) {
	backend := &fakeBackend{
		names: []string{"plan_v1", "plan_v2", "git_diff", "validation_logs", "workspace_fingerprint"},
	}
	r := New(backend, "job-42")
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := r.Summary()
	want := []string{"Diff", "Fingerprint", "Log", "Plan"}
	if len(s.Categories) != len(want) {
		t.Fatalf("category mismatch: got %v", s.Categories)
	}
	for i := range want {
		if s.Categories[i] != want[i] {
			t.Fatalf("category mismatch: got %v", s.Categories)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{512, "512 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1572864, "1.5 MB"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.bytes); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := FormatDate(nil, now); got != "Unknown" {
		t.Errorf("nil date = %q", got)
	}

	cases := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "Just now"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-2 * 24 * time.Hour), "2 days ago"},
	}
	for _, tc := range cases {
		at := tc.at
		if got := FormatDate(&at, now); got != tc.want {
			t.Errorf("FormatDate(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestDisplayNameAndDescription(t *testing.T) {
	if got := DisplayName("git_diff"); got != "Git Diff" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := Description("plan_v3"); got != "Plan version 3" {
		t.Errorf("Description = %q", got)
	}
	if got := Description("input_spec"); got != "Input specification for the job" {
		t.Errorf("Description = %q", got)
	}
	if got := Description("something_else"); got != "Artifact data" {
		t.Errorf("Description = %q", got)
	}
	if got := Category("pr_metadata"); got != "Metadata" {
		t.Errorf("Category = %q", got)
	}
}
