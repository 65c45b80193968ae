// Package memory is the client for the external vector-memory
// collaborator. It stores extraction flows that worked and returns the
// closest past flows for a domain so the recovery controller can bias a
// retry. The collaborator is optional; callers treat every error here as
// "no memory available".
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Client implements recovery.FlowMemory over HTTP.
type Client struct {
	cfg        config.MemoryConfig
	httpClient *http.Client
}

// NewClient creates a memory client. Pass nil to use a default http.Client
// bounded by the configured timeout.
func NewClient(cfg config.MemoryConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type lookupResponse struct {
	Flows []models.PastFlow `json:"flows"`
}

// Lookup returns past flows for a domain, best match first.
func (c *Client) Lookup(ctx context.Context, domain string) ([]models.PastFlow, error) {
	endpoint := fmt.Sprintf("%s/flows?domain=%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("memory lookup returned %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse memory lookup response: %w", err)
	}
	return out.Flows, nil
}

// Store records a flow that produced an accepted extraction.
func (c *Client) Store(ctx context.Context, domain string, flow models.PastFlow) error {
	flow.Domain = domain
	body, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/flows"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory store failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory store returned %d", resp.StatusCode)
	}
	return nil
}
