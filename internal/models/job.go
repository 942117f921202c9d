package models

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job types.
const (
	JobMigrationPreview = "migration-preview"
	JobMigrationRun     = "migration-run"
)

// Job represents an async operation (preview or run) started over the API.
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	SourceID      string     `json:"source_id"`
	DestinationID string     `json:"destination_id"`
	Status        string     `json:"status"` // "running", "completed", "failed"
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	Output        []string   `json:"output"`
	Progress      *Progress  `json:"progress,omitempty"`

	mu     sync.Mutex
	cancel context.CancelFunc
}

// AppendLog adds a log line to the job output.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = append(j.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (j *Job) LogsSince(offset int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if offset >= len(j.Output) {
		return nil
	}
	lines := make([]string, len(j.Output)-offset)
	copy(lines, j.Output[offset:])
	return lines
}

// MarshalJSON encodes the job under its lock.
func (j *Job) MarshalJSON() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	output := make([]string, len(j.Output))
	copy(output, j.Output)
	return json.Marshal(struct {
		ID            string     `json:"id"`
		Type          string     `json:"type"`
		SourceID      string     `json:"source_id"`
		DestinationID string     `json:"destination_id"`
		Status        string     `json:"status"`
		StartedAt     time.Time  `json:"started_at"`
		FinishedAt    *time.Time `json:"finished_at,omitempty"`
		Error         string     `json:"error,omitempty"`
		Output        []string   `json:"output"`
		Progress      *Progress  `json:"progress,omitempty"`
	}{j.ID, j.Type, j.SourceID, j.DestinationID, j.Status, j.StartedAt, j.FinishedAt, j.Error, output, j.Progress})
}

// SetProgress records the latest aggregated progress.
func (j *Job) SetProgress(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = &p
}

// LatestProgress returns the latest progress, if any was recorded.
func (j *Job) LatestProgress() (Progress, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Progress == nil {
		return Progress{}, false
	}
	return *j.Progress, true
}

// CurrentStatus returns the job status.
func (j *Job) CurrentStatus() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// Done reports whether the job has completed or failed.
func (j *Job) Done() bool {
	s := j.CurrentStatus()
	return s == "completed" || s == "failed"
}

// SetCancel stores the function that stops the job's context.
func (j *Job) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Cancel stops the job's context if it is still running.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil || j.Status != "running" {
		return false
	}
	j.cancel()
	return true
}

// Complete marks the job as completed.
func (j *Job) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = "completed"
	now := time.Now()
	j.FinishedAt = &now
}

// Fail marks the job as failed with an error message.
func (j *Job) Fail(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = "failed"
	j.Error = err
	now := time.Now()
	j.FinishedAt = &now
}

// JobStore is an in-memory thread-safe store for jobs.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create adds a new job, assigning it a UUID.
func (s *JobStore) Create(jobType, sourceID, destinationID string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &Job{
		ID:            uuid.New().String(),
		Type:          jobType,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Status:        "running",
		StartedAt:     time.Now(),
		Output:        []string{},
	}
	s.jobs[j.ID] = j
	return j
}

// Get returns a job by ID.
func (s *JobStore) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// List returns all jobs, most recent first.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, j)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].StartedAt.After(result[b].StartedAt)
	})
	return result
}
