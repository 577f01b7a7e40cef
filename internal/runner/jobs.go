package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job statuses mirrored to API clients polling for a run.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobStatus is a point-in-time snapshot of one scrape job.
type JobStatus struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	Progress     string     `json:"progress"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RecordsFound int        `json:"records_found,omitempty"`
	RecordsSaved int        `json:"records_saved,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Jobs is the in-memory registry of scrape jobs. One writer (the run worker)
// and any number of readers serialize through the mutex; Get hands out
// copies, never the live entry. Completed entries are retained until the
// sweep removes them or the process restarts.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*JobStatus
}

// NewJobs creates an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*JobStatus)}
}

// Create registers a new running job and returns its ID.
func (j *Jobs) Create() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.New().String()
	j.jobs[id] = &JobStatus{
		JobID:     id,
		Status:    JobStatusRunning,
		Progress:  "Initializing scraper...",
		StartedAt: time.Now().UTC(),
	}
	return id
}

// Get returns a snapshot of the job, or false if the ID is unknown.
func (j *Jobs) Get(id string) (JobStatus, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return *job, true
}

// SetProgress updates the progress line of a running job.
func (j *Jobs) SetProgress(id, progress string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if job, ok := j.jobs[id]; ok {
		job.Progress = progress
	}
}

// Complete marks a job terminal with its final counts.
func (j *Jobs) Complete(id, progress string, found, saved int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if job, ok := j.jobs[id]; ok {
		now := time.Now().UTC()
		job.Status = JobStatusCompleted
		job.Progress = progress
		job.CompletedAt = &now
		job.RecordsFound = found
		job.RecordsSaved = saved
	}
}

// Fail marks a job terminal with an error.
func (j *Jobs) Fail(id, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if job, ok := j.jobs[id]; ok {
		now := time.Now().UTC()
		job.Status = JobStatusFailed
		job.Progress = "Error: " + errMsg
		job.CompletedAt = &now
		job.Error = errMsg
	}
}

// Sweep removes terminal jobs whose completion is older than maxAge and
// returns how many were evicted. Running jobs are never touched.
func (j *Jobs) Sweep(maxAge time.Duration) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	evicted := 0
	for id, job := range j.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(j.jobs, id)
			evicted++
		}
	}
	return evicted
}
