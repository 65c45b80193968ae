package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/persist"
	"github.com/use-agent/harvest/runner"
)

// Extract returns a handler for POST /api/v1/extract.
//
// The request is served from the record cache when the caller allows it
// (max_age > 0), otherwise it is submitted to the runner and the handler
// blocks until the job completes. Completed outcomes (success or partial)
// are cached and delivered to the persistence webhook.
func Extract(run *runner.Runner, cc *cache.Cache, notifier *persist.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInvalidJob,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		key := cache.Key(req.URL, req.Fields)
		if cached, ok := cc.Get(key, time.Duration(req.MaxAge)*time.Millisecond); ok {
			c.JSON(http.StatusOK, models.ExtractResponse{
				Success:     true,
				Outcome:     cached,
				CacheStatus: "hit",
				TotalMs:     time.Since(start).Milliseconds(),
			})
			return
		}

		job := &models.ScrapeJob{
			URL:         req.URL,
			Fields:      req.Fields,
			Credentials: req.Credentials,
			Deadline:    time.Now().Add(time.Duration(req.Timeout) * time.Second),
		}

		outcome, err := run.Submit(c.Request.Context(), job)
		if err != nil {
			writeSubmitError(c, err)
			return
		}

		cc.Set(key, outcome)
		notifier.DeliverAsync(outcome)

		c.JSON(http.StatusOK, models.ExtractResponse{
			Success: outcome.Status != models.StatusFailed,
			Outcome: outcome,
			TotalMs: time.Since(start).Milliseconds(),
		})
	}
}

// writeSubmitError maps admission errors to HTTP status codes.
func writeSubmitError(c *gin.Context, err error) {
	var ee *models.ExtractError
	if !errors.As(err, &ee) {
		ee = models.NewExtractError(models.ErrKindInternal, err.Error(), err)
	}

	status := http.StatusInternalServerError
	switch ee.Kind {
	case models.ErrKindInvalidJob:
		status = http.StatusBadRequest
	case models.ErrKindRateLimitExceeded:
		status = http.StatusTooManyRequests
	case models.ErrKindDomainCooldown:
		status = http.StatusServiceUnavailable
	case models.ErrKindNavigationTimeout:
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, models.ExtractResponse{
		Success: false,
		Error:   ee.ToDetail(),
	})
}
