package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScrapeJob describes one extraction request. Immutable once admitted.
type ScrapeJob struct {
	// ID identifies the job in logs, outcomes and webhook events.
	ID string `json:"id"`

	// URL is the target listing page. Required.
	URL string `json:"url"`

	// Domain is the normalized hostname, filled in by Normalize.
	Domain string `json:"domain"`

	// Fields is the requested field set, e.g. ["price", "address", "bedrooms"].
	Fields []string `json:"fields"`

	// Credentials are optional site credentials forwarded to the browser
	// session as cookies. Never logged.
	Credentials map[string]string `json:"credentials,omitempty"`

	// Deadline bounds the whole job including retries. Zero means the
	// runner's default applies.
	Deadline time.Time `json:"deadline,omitempty"`
}

// DefaultFields is the field set assumed when a job names none.
var DefaultFields = []string{"price", "address", "bedrooms", "bathrooms", "sqft", "description"}

// Normalize validates the job, assigns an ID when absent, and derives the
// domain from the URL. It is the single fail-fast validation point: any
// error it returns carries ErrKindInvalidJob and must not be retried.
func (j *ScrapeJob) Normalize() error {
	if j.URL == "" {
		return NewExtractError(ErrKindInvalidJob, "job has no URL", nil)
	}
	u, err := url.Parse(j.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return NewExtractError(ErrKindInvalidJob, fmt.Sprintf("not an absolute http(s) URL: %q", j.URL), err)
	}
	j.Domain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if len(j.Fields) == 0 {
		j.Fields = append([]string(nil), DefaultFields...)
	}
	return nil
}

// Job status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// AttemptTiming records one ladder attempt for the outcome report.
type AttemptTiming struct {
	// Wait names the load-wait condition used, e.g. "networkidle".
	Wait string `json:"wait"`

	// DurationMs is the wall-clock time of the attempt.
	DurationMs int64 `json:"duration_ms"`

	// ErrKind is the attempt-local error kind, empty on success.
	ErrKind string `json:"err_kind,omitempty"`
}

// JobOutcome is the terminal result of one job. Created once, immutable
// after completion.
type JobOutcome struct {
	JobID    string          `json:"job_id"`
	URL      string          `json:"url"`
	Domain   string          `json:"domain"`
	Status   string          `json:"status"` // success | partial | failed
	Record   *MergedRecord   `json:"record,omitempty"`
	Retries  int             `json:"retries"`
	Attempts []AttemptTiming `json:"attempts,omitempty"`

	// ErrKind is the terminal error kind when Status is "failed".
	ErrKind string `json:"err_kind,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}
