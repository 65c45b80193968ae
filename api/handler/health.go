package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/recovery"
	"github.com/use-agent/harvest/runner"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and open circuit breakers; status degrades when
// more than 80% of browser pages are active.
func Health(bm *browser.Manager, run *runner.Runner, counter *recovery.FailureCounter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := bm.Stats()

		status := "healthy"
		if sessions.MaxPages > 0 && sessions.ActivePages > int(float64(sessions.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:        status,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
			Sessions:      sessions,
			Runner:        run.Stats(),
			OpenBreakers:  counter.Open(),
		})
	}
}
