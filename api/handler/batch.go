package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/persist"
	"github.com/use-agent/harvest/runner"
)

// batchStore holds all in-flight and completed batch jobs.
var batchStore sync.Map

func init() {
	// Background goroutine to expire batch jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			batchStore.Range(func(key, value any) bool {
				if value.(*models.BatchJob).CreatedAt < cutoff {
					batchStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostBatch returns a handler for POST /api/v1/batch/extract.
// It validates the request, registers a batch job, and extracts each URL
// in the background. A per-batch webhook URL, when given, receives one
// signed event per completed job.
func PostBatch(run *runner.Runner, persistCfg config.PersistConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.BatchResponse{
				Status: "failed",
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInvalidJob,
					Message: err.Error(),
				},
			})
			return
		}

		if len(req.URLs) > 100 {
			c.JSON(http.StatusBadRequest, models.BatchResponse{
				Status: "failed",
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInvalidJob,
					Message: "maximum 100 URLs per batch",
				},
			})
			return
		}

		jobID := "batch-" + randomID()
		batch := models.NewBatchJob(jobID, len(req.URLs))
		batchStore.Store(jobID, batch)

		var notifier *persist.Notifier
		if req.WebhookURL != "" {
			notifier = persist.NewNotifier(config.PersistConfig{
				WebhookURL: req.WebhookURL,
				Secret:     persistCfg.Secret,
			}, nil)
		}

		go runBatch(run, batch, req, notifier)

		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     jobID,
			Status: "processing",
			Total:  len(req.URLs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		val, ok := batchStore.Load(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, models.BatchResponse{
				Status: "failed",
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInvalidJob,
					Message: "batch job not found",
				},
			})
			return
		}

		batch := val.(*models.BatchJob)
		status, completed, outcomes := batch.Snapshot()
		c.JSON(http.StatusOK, models.BatchResponse{
			ID:        batch.ID,
			Status:    status,
			Completed: completed,
			Total:     batch.Total,
			Outcomes:  outcomes,
		})
	}
}

// runBatch submits every URL of a batch. The runner's own slot pool bounds
// the real work; the local semaphore only keeps the waiting-goroutine count
// below the runner's backpressure threshold.
func runBatch(run *runner.Runner, batch *models.BatchJob, req models.BatchRequest, notifier *persist.Notifier) {
	maxConcurrent := run.Stats().MaxWorkers
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := make(chan struct{}, maxConcurrent)

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	var wg sync.WaitGroup
	var failed atomic.Int32

	for i, rawURL := range req.URLs {
		wg.Add(1)
		go func(idx int, targetURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job := &models.ScrapeJob{
				URL:      targetURL,
				Fields:   req.Fields,
				Deadline: time.Now().Add(timeout),
			}
			outcome, err := run.Submit(context.Background(), job)
			if err != nil {
				outcome = &models.JobOutcome{
					URL:         targetURL,
					Status:      models.StatusFailed,
					ErrKind:     models.KindOf(err),
					CompletedAt: time.Now(),
				}
			}
			if outcome.Status == models.StatusFailed {
				failed.Add(1)
			}
			batch.SetOutcome(idx, outcome)

			if notifier != nil {
				notifier.DeliverAsync(outcome)
			}
		}(i, rawURL)
	}

	wg.Wait()

	failedCount := int(failed.Load())
	switch {
	case failedCount == batch.Total:
		batch.Finish("failed")
	case failedCount > 0:
		batch.Finish("partial")
	default:
		batch.Finish("completed")
	}

	slog.Info("batch finished",
		"id", batch.ID,
		"failed", failedCount,
		"total", batch.Total,
	)
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
