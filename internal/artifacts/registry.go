// Package artifacts loads and organizes a job's artifact listing together
// with best-effort per-artifact metadata.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ticketops/tickctl/internal/api"
)

// API is the slice of the backend client the registry needs.
type API interface {
	ListArtifacts(ctx context.Context, jobID string) ([]string, error)
	GetArtifactMetadata(ctx context.Context, jobID, artifact string) (*api.ArtifactMetadata, error)
}

// SortBy selects the artifact sort key.
type SortBy string

const (
	SortByName SortBy = "name"
	SortBySize SortBy = "size"
	SortByDate SortBy = "date"
	SortByType SortBy = "type"
)

// Filters narrows the artifact listing. Zero-value fields are inactive.
type Filters struct {
	Type    string
	MinSize *int64
	MaxSize *int64
	After   *time.Time
	Before  *time.Time
}

func (f Filters) active() bool {
	return f.Type != "" || f.MinSize != nil || f.MaxSize != nil || f.After != nil || f.Before != nil
}

// Registry holds a job's artifact names and lazily fetched metadata.
// Metadata is cached per (job, artifact) and survives reloads.
type Registry struct {
	client API
	jobID  string

	mu       sync.Mutex
	names    []string
	metadata map[string]*api.ArtifactMetadata
	cache    map[string]*api.ArtifactMetadata
	sortBy   SortBy
	order    ascending
	filters  Filters
}

type ascending bool

// New creates a registry for the given job.
func New(client API, jobID string) *Registry {
	return &Registry{
		client:   client,
		jobID:    jobID,
		metadata: make(map[string]*api.ArtifactMetadata),
		cache:    make(map[string]*api.ArtifactMetadata),
		sortBy:   SortByName,
		order:    true,
	}
}

// Load fetches the artifact name list, then the metadata for every
// artifact in parallel. Metadata is optional: a failed metadata fetch is
// logged and the artifact stays listed without it.
func (r *Registry) Load(ctx context.Context) error {
	if strings.TrimSpace(r.jobID) == "" {
		return fmt.Errorf("load artifacts: job id is required")
	}

	names, err := r.client.ListArtifacts(ctx, r.jobID)
	if err != nil {
		return err
	}

	valid := make([]string, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			valid = append(valid, name)
		}
	}

	r.mu.Lock()
	r.names = valid
	r.metadata = make(map[string]*api.ArtifactMetadata)
	r.mu.Unlock()

	return r.loadAllMetadata(ctx, valid)
}

// loadAllMetadata issues the metadata requests as one batch. Each request
// is isolated: a failure never aborts the others.
func (r *Registry) loadAllMetadata(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			r.mu.Lock()
			cached, ok := r.cache[name]
			if ok {
				r.metadata[name] = cached
			}
			r.mu.Unlock()
			if ok {
				return nil
			}

			meta, err := r.client.GetArtifactMetadata(ctx, r.jobID, name)
			if err != nil {
				slog.Warn("failed to load artifact metadata", "job_id", r.jobID, "artifact", name, "error", err)
				return nil
			}

			r.mu.Lock()
			r.cache[name] = meta
			r.metadata[name] = meta
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// LoadMetadata fetches one artifact's metadata, consulting the cache
// first. Returns nil without error when the fetch fails.
func (r *Registry) LoadMetadata(ctx context.Context, name string) *api.ArtifactMetadata {
	if strings.TrimSpace(r.jobID) == "" || strings.TrimSpace(name) == "" {
		return nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[name]; ok {
		r.metadata[name] = cached
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	meta, err := r.client.GetArtifactMetadata(ctx, r.jobID, name)
	if err != nil {
		slog.Warn("failed to load artifact metadata", "job_id", r.jobID, "artifact", name, "error", err)
		return nil
	}

	r.mu.Lock()
	r.cache[name] = meta
	r.metadata[name] = meta
	r.mu.Unlock()
	return meta
}

// Names returns the raw artifact listing.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Metadata returns the cached metadata for one artifact, or nil.
func (r *Registry) Metadata(name string) *api.ArtifactMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata[name]
}

// SetSort selects the sort key. Selecting the current key again flips the
// direction.
func (r *Registry) SetSort(by SortBy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sortBy == by {
		r.order = !r.order
		return
	}
	r.sortBy = by
	r.order = true
}

// SetFilters merges the given filters into the active set.
func (r *Registry) SetFilters(f Filters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Type != "" {
		r.filters.Type = f.Type
	}
	if f.MinSize != nil {
		r.filters.MinSize = f.MinSize
	}
	if f.MaxSize != nil {
		r.filters.MaxSize = f.MaxSize
	}
	if f.After != nil {
		r.filters.After = f.After
	}
	if f.Before != nil {
		r.filters.Before = f.Before
	}
}

// ClearFilters deactivates all filters.
func (r *Registry) ClearFilters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = Filters{}
}

// Sorted returns the filtered artifact names in the active sort order.
func (r *Registry) Sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		if r.filters.active() && !r.matchesLocked(name) {
			continue
		}
		out = append(out, name)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if r.order {
			return r.lessLocked(out[i], out[j])
		}
		return r.lessLocked(out[j], out[i])
	})
	return out
}

func (r *Registry) matchesLocked(name string) bool {
	f := r.filters
	if f.Type != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.Type)) {
		return false
	}

	meta := r.metadata[name]
	if meta != nil {
		if f.MinSize != nil && meta.SizeBytes < *f.MinSize {
			return false
		}
		if f.MaxSize != nil && meta.SizeBytes > *f.MaxSize {
			return false
		}
		if meta.CreatedAt != nil {
			if f.After != nil && meta.CreatedAt.Before(*f.After) {
				return false
			}
			if f.Before != nil && meta.CreatedAt.After(*f.Before) {
				return false
			}
		}
	}
	return true
}

func (r *Registry) lessLocked(a, b string) bool {
	switch r.sortBy {
	case SortBySize:
		return r.sizeLocked(a) < r.sizeLocked(b)
	case SortByDate:
		return r.dateLocked(a).Before(r.dateLocked(b))
	case SortByType:
		// Artifact names group by prefix, e.g. plan_v1 and plan_v2.
		return typePrefix(a) < typePrefix(b)
	default:
		return a < b
	}
}

func (r *Registry) sizeLocked(name string) int64 {
	if meta := r.metadata[name]; meta != nil {
		return meta.SizeBytes
	}
	return 0
}

func (r *Registry) dateLocked(name string) time.Time {
	if meta := r.metadata[name]; meta != nil && meta.CreatedAt != nil {
		return *meta.CreatedAt
	}
	return time.Time{}
}

func typePrefix(name string) string {
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return name
}

// Summary aggregates the current registry contents.
type Summary struct {
	TotalCount   int
	WithMetadata int
	TotalSize    int64
	Categories   []string
}

// Summary reports counts, aggregate size, and the distinct categories
// inferred from the artifact names.
func (r *Registry) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{TotalCount: len(r.names)}
	for _, meta := range r.metadata {
		s.WithMetadata++
		s.TotalSize += meta.SizeBytes
	}

	seen := make(map[string]bool)
	for _, name := range r.names {
		category := Category(name)
		if !seen[category] {
			seen[category] = true
			s.Categories = append(s.Categories, category)
		}
	}
	sort.Strings(s.Categories)
	return s
}

// Reset discards all loaded state, including the metadata cache.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
	r.metadata = make(map[string]*api.ArtifactMetadata)
	r.cache = make(map[string]*api.ArtifactMetadata)
	r.sortBy = SortByName
	r.order = true
	r.filters = Filters{}
}
