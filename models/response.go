package models

import (
	"sync"
	"time"
)

// ExtractResponse is the body for POST /api/v1/extract.
type ExtractResponse struct {
	Success bool         `json:"success"`
	Outcome *JobOutcome  `json:"outcome,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`

	// CacheStatus is "hit" when the record came from the cache.
	CacheStatus string `json:"cache_status,omitempty"`

	// TotalMs is the end-to-end handler time.
	TotalMs int64 `json:"total_ms"`
}

// BatchJob tracks an in-flight or completed batch. Workers store outcomes
// and status pollers read concurrently, so all mutable state is guarded;
// read through Snapshot, write through SetOutcome and Finish.
type BatchJob struct {
	ID        string
	Total     int
	CreatedAt int64

	mu        sync.Mutex
	status    string // processing | completed | partial | failed
	completed int
	outcomes  []*JobOutcome
}

// NewBatchJob creates a processing batch with room for total outcomes.
func NewBatchJob(id string, total int) *BatchJob {
	return &BatchJob{
		ID:        id,
		Total:     total,
		CreatedAt: time.Now().Unix(),
		status:    "processing",
		outcomes:  make([]*JobOutcome, total),
	}
}

// SetOutcome records one finished URL and advances the completed count.
func (b *BatchJob) SetOutcome(idx int, outcome *JobOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[idx] = outcome
	b.completed++
}

// Finish marks the batch terminal with the given status.
func (b *BatchJob) Finish(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// Snapshot returns a consistent view for status polling. The outcome slice
// is copied so the caller never aliases worker-written storage.
func (b *BatchJob) Snapshot() (status string, completed int, outcomes []*JobOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.completed, append([]*JobOutcome(nil), b.outcomes...)
}

// BatchResponse is the body for POST /api/v1/batch/extract and
// GET /api/v1/batch/:id.
type BatchResponse struct {
	ID        string        `json:"id,omitempty"`
	Status    string        `json:"status"`
	Total     int           `json:"total,omitempty"`
	Completed int           `json:"completed,omitempty"`
	Outcomes  []*JobOutcome `json:"outcomes,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
}

// HealthResponse is the body for GET /api/v1/health.
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Sessions      SessionStats   `json:"sessions"`
	Runner        RunnerStats    `json:"runner"`
	OpenBreakers  map[string]int `json:"open_breakers,omitempty"`
}

// SessionStats is a snapshot of the browser page pool.
type SessionStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}

// RunnerStats is a snapshot of the concurrency manager.
type RunnerStats struct {
	MaxWorkers int `json:"max_workers"`
	Active     int `json:"active"`
	Waiting    int `json:"waiting"`
	QueueDepth int `json:"queue_depth"`
}
