package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds every job admitted since process start. All reads return
// copies; records change only through Update.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create stores a new job at queued/0% and returns its id. An empty ID is
// filled with a fresh UUID.
func (r *Registry) Create(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.Status != StatusQueued || job.Percent != 0 || job.ErrorDetail != "" {
		return "", fmt.Errorf("%w: new job must start queued at 0%%", ErrInvalidTransition)
	}

	now := r.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return "", fmt.Errorf("job %s already exists", job.ID)
	}
	r.jobs[job.ID] = &job
	return job.ID, nil
}

func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// Update applies mutate to a copy of the job and commits it only if the
// result is a legal transition from the stored state.
func (r *Registry) Update(id string, mutate func(*Job)) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	next := *current
	mutate(&next)
	if err := validateTransition(*current, next); err != nil {
		return *current, err
	}

	now := r.now()
	next.UpdatedAt = now
	if next.Status.Terminal() {
		next.FinishedAt = now
	}
	r.jobs[id] = &next
	return next, nil
}

// List returns all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	jobs := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, *j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// discard drops a record that was never admitted to the worker pool.
func (r *Registry) discard(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

func validateTransition(prev, next Job) error {
	switch {
	case next.ID != prev.ID || !next.CreatedAt.Equal(prev.CreatedAt):
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	case prev.Status.Terminal():
		return fmt.Errorf("%w: job is already %s", ErrInvalidTransition, prev.Status)
	case !next.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	case order[next.Status] < order[prev.Status]:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	case next.Percent < prev.Percent || next.Percent > 100:
		return fmt.Errorf("%w: percent %d -> %d", ErrInvalidTransition, prev.Percent, next.Percent)
	}

	switch next.Status {
	case StatusError:
		if next.ErrorDetail == "" {
			return fmt.Errorf("%w: error status needs a detail", ErrInvalidTransition)
		}
		if next.Percent != prev.Percent {
			return fmt.Errorf("%w: percent is frozen on error", ErrInvalidTransition)
		}
	case StatusDone:
		if next.Percent != 100 || next.ErrorDetail != "" {
			return fmt.Errorf("%w: done requires 100%% and no error detail", ErrInvalidTransition)
		}
	default:
		if next.ErrorDetail != "" {
			return fmt.Errorf("%w: error detail outside error status", ErrInvalidTransition)
		}
		if next.Percent == 100 {
			return fmt.Errorf("%w: 100%% is reserved for done", ErrInvalidTransition)
		}
	}
	return nil
}
