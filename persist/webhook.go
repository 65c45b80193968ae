// Package persist delivers completed job outcomes to the external
// persistence collaborator as signed webhook events. Delivery is
// fire-and-forget from the extraction path's point of view: a dead
// collaborator never blocks or fails a job, the outcome is still returned
// to the caller.
package persist

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Event types delivered to the collaborator.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Event is the payload sent to the webhook endpoint.
type Event struct {
	Type      string             `json:"type"`
	JobID     string             `json:"job_id"`
	Timestamp int64              `json:"timestamp"`
	Outcome   *models.JobOutcome `json:"outcome"`
}

// Notifier sends job outcomes to the configured webhook. The zero-value
// check makes an unconfigured Notifier a no-op, so callers never branch.
type Notifier struct {
	cfg        config.PersistConfig
	httpClient *http.Client
}

// NewNotifier creates a Notifier. Pass nil to use a default http.Client.
func NewNotifier(cfg config.PersistConfig, httpClient *http.Client) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{cfg: cfg, httpClient: httpClient}
}

// Enabled reports whether a webhook endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

// eventFor maps an outcome to its event type.
func eventFor(outcome *models.JobOutcome) *Event {
	typ := EventJobCompleted
	if outcome.Status == models.StatusFailed {
		typ = EventJobFailed
	}
	return &Event{
		Type:      typ,
		JobID:     outcome.JobID,
		Timestamp: time.Now().Unix(),
		Outcome:   outcome,
	}
}

// Deliver sends one outcome synchronously. The request body is signed with
// HMAC-SHA256 when a secret is configured.
// Header: X-Harvest-Signature: sha256=<hex>
func (n *Notifier) Deliver(ctx context.Context, outcome *models.JobOutcome) error {
	if !n.Enabled() {
		return nil
	}
	event := eventFor(outcome)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Harvest-Webhook/1.0")

	if n.cfg.Secret != "" {
		req.Header.Set("X-Harvest-Signature", "sha256="+Sign(n.cfg.Secret, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body. Exported so collaborators can
// verify signatures with the same code path.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// DeliverAsync sends an outcome asynchronously with up to 3 retries.
// Retry intervals: 1s, 5s, 30s.
func (n *Notifier) DeliverAsync(outcome *models.JobOutcome) {
	if !n.Enabled() {
		return
	}
	go func() {
		delays := []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := n.Deliver(ctx, outcome)
			cancel()
			if err == nil {
				slog.Info("outcome delivered",
					"jobID", outcome.JobID,
					"status", outcome.Status,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("outcome delivery failed",
				"jobID", outcome.JobID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("outcome delivery exhausted all retries",
			"jobID", outcome.JobID,
		)
	}()
}
