package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/persist"
	"github.com/use-agent/harvest/recovery"
	"github.com/use-agent/harvest/runner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubExec returns a canned outcome without touching a browser.
type stubExec struct {
	status string
}

func (e *stubExec) Run(_ context.Context, job *models.ScrapeJob) *models.JobOutcome {
	return &models.JobOutcome{
		JobID:  job.ID,
		URL:    job.URL,
		Domain: job.Domain,
		Status: e.status,
		Record: &models.MergedRecord{
			Fields: map[string]models.FieldExtraction{
				"price": {Field: "price", Value: "$450,000", Strategy: models.StrategyStructured, Confidence: 0.95},
			},
			Confidence: 0.95,
		},
		Retries:     1,
		CompletedAt: time.Now(),
	}
}

func newTestRunner(exec runner.Executor, counter *recovery.FailureCounter) *runner.Runner {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return runner.New(config.RunnerConfig{
		MaxWorkers:        2,
		QueueDepth:        8,
		DomainRPS:         1000,
		DomainBurst:       100,
		DefaultJobTimeout: time.Minute,
	}, exec, counter, logger)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func extractRouter(run *runner.Runner, cc *cache.Cache) *gin.Engine {
	r := gin.New()
	r.POST("/extract", Extract(run, cc, persist.NewNotifier(config.PersistConfig{}, nil)))
	return r
}

func postExtract(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, models.ExtractResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp models.ExtractResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, w.Body.String())
	}
	return w, resp
}

func TestExtract_Success(t *testing.T) {
	run := newTestRunner(&stubExec{status: models.StatusSuccess}, recovery.NewFailureCounter(5, time.Minute))
	r := extractRouter(run, cache.New(10))

	w, resp := postExtract(t, r, `{"url": "https://www.zillow.com/homedetails/1/"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.Outcome == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Outcome.Domain != "zillow.com" {
		t.Errorf("domain = %q", resp.Outcome.Domain)
	}
	if resp.CacheStatus == "hit" {
		t.Error("first request cannot be a cache hit")
	}
}

func TestExtract_FailedOutcomeStillHTTP200(t *testing.T) {
	run := newTestRunner(&stubExec{status: models.StatusFailed}, recovery.NewFailureCounter(5, time.Minute))
	r := extractRouter(run, cache.New(10))

	w, resp := postExtract(t, r, `{"url": "https://www.zillow.com/homedetails/1/"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, the job ran, failure is in the outcome", w.Code)
	}
	if resp.Success {
		t.Error("success flag set for a failed outcome")
	}
}

func TestExtract_BadRequest(t *testing.T) {
	run := newTestRunner(&stubExec{status: models.StatusSuccess}, recovery.NewFailureCounter(5, time.Minute))
	r := extractRouter(run, cache.New(10))

	w, resp := postExtract(t, r, `{"fields": ["price"]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Kind != models.ErrKindInvalidJob {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestExtract_CooldownMapsTo503(t *testing.T) {
	counter := recovery.NewFailureCounter(1, time.Hour)
	counter.RecordFailure("zillow.com")

	run := newTestRunner(&stubExec{status: models.StatusSuccess}, counter)
	r := extractRouter(run, cache.New(10))

	w, resp := postExtract(t, r, `{"url": "https://www.zillow.com/homedetails/1/"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp.Error == nil || resp.Error.Kind != models.ErrKindDomainCooldown {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestExtract_CacheHit(t *testing.T) {
	run := newTestRunner(&stubExec{status: models.StatusSuccess}, recovery.NewFailureCounter(5, time.Minute))
	r := extractRouter(run, cache.New(10))

	body := `{"url": "https://www.zillow.com/homedetails/1/", "max_age": 60000}`
	if _, resp := postExtract(t, r, body); resp.CacheStatus == "hit" {
		t.Fatal("cold cache reported a hit")
	}
	_, resp := postExtract(t, r, body)
	if resp.CacheStatus != "hit" {
		t.Errorf("second request cache status = %q, want hit", resp.CacheStatus)
	}
}

func TestExtract_MaxAgeZeroBypassesCache(t *testing.T) {
	run := newTestRunner(&stubExec{status: models.StatusSuccess}, recovery.NewFailureCounter(5, time.Minute))
	r := extractRouter(run, cache.New(10))

	body := `{"url": "https://www.zillow.com/homedetails/1/"}`
	postExtract(t, r, body)
	_, resp := postExtract(t, r, body)
	if resp.CacheStatus == "hit" {
		t.Error("max_age 0 must always fetch fresh")
	}
}
