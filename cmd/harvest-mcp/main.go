// harvest-mcp exposes the harvest HTTP API as MCP tools over stdio, so
// agent runtimes can pull listing data without speaking HTTP themselves.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// extractRequest mirrors the harvest API request model.
type extractRequest struct {
	URL    string   `json:"url"`
	Fields []string `json:"fields,omitempty"`
	MaxAge int      `json:"max_age,omitempty"`
}

// extractResponse mirrors the harvest API response model.
type extractResponse struct {
	Success bool `json:"success"`
	Outcome *struct {
		JobID  string `json:"job_id"`
		URL    string `json:"url"`
		Domain string `json:"domain"`
		Status string `json:"status"`
		Record *struct {
			Fields map[string]struct {
				Value      string  `json:"value"`
				Strategy   string  `json:"strategy"`
				Confidence float64 `json:"confidence"`
			} `json:"fields"`
			Confidence float64  `json:"confidence"`
			Partial    bool     `json:"partial"`
			Missing    []string `json:"missing,omitempty"`
		} `json:"record"`
		Retries int    `json:"retries"`
		ErrKind string `json:"err_kind,omitempty"`
	} `json:"outcome"`
	CacheStatus string `json:"cache_status,omitempty"`
	Error       *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// healthResponse mirrors the harvest health API response.
type healthResponse struct {
	Status string `json:"status"`
	Runner struct {
		MaxWorkers int `json:"max_workers"`
		Active     int `json:"active"`
		Waiting    int `json:"waiting"`
	} `json:"runner"`
	Sessions struct {
		MaxPages    int `json:"max_pages"`
		ActivePages int `json:"active_pages"`
	} `json:"sessions"`
	OpenBreakers map[string]int `json:"open_breakers,omitempty"`
}

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVEST_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"harvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_listing",
		mcp.WithDescription("Extract structured real-estate listing data (price, address, bedrooms, bathrooms, sqft, description) from a listing page URL. Uses a headless browser with multiple extraction strategies and returns per-field confidence scores."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the listing page"),
		),
		mcp.WithArray("fields",
			mcp.Description("Fields to extract (default: price, address, bedrooms, bathrooms, sqft, description)"),
		),
		mcp.WithNumber("max_age_ms",
			mcp.Description("Accept a cached record up to this many milliseconds old (default: 0, always fetch fresh)"),
		),
	)
	s.AddTool(extractTool, handleExtractListing(apiURL, apiKey))

	statusTool := mcp.NewTool("domain_status",
		mcp.WithDescription("Report the extractor's health: worker pool utilisation, browser page pool, and domains currently in circuit-breaker cooldown."),
	)
	s.AddTool(statusTool, handleDomainStatus(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleExtractListing(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 320 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := extractRequest{URL: url}
		args := request.GetArguments()
		if maxAge, ok := args["max_age_ms"].(float64); ok {
			reqBody.MaxAge = int(maxAge)
		}
		if fields, ok := args["fields"].([]interface{}); ok {
			for _, f := range fields {
				if s, ok := f.(string); ok && s != "" {
					reqBody.Fields = append(reqBody.Fields, s)
				}
			}
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/extract", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var extractResp extractResponse
		if err := json.Unmarshal(respBody, &extractResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if extractResp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", extractResp.Error.Kind, extractResp.Error.Message)), nil
		}
		if extractResp.Outcome == nil {
			return mcp.NewToolResultError("extraction returned no outcome"), nil
		}

		return mcp.NewToolResultText(formatOutcome(&extractResp)), nil
	}
}

// formatOutcome renders an extraction outcome as readable text plus the
// raw record JSON.
func formatOutcome(resp *extractResponse) string {
	o := resp.Outcome
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s", o.Status)
	if resp.CacheStatus == "hit" {
		b.WriteString(" (cached)")
	}
	fmt.Fprintf(&b, "\nURL: %s\nDomain: %s\nAttempts: %d\n", o.URL, o.Domain, o.Retries)

	if o.Record != nil {
		fmt.Fprintf(&b, "Overall confidence: %.2f\n\n", o.Record.Confidence)
		for field, ex := range o.Record.Fields {
			fmt.Fprintf(&b, "%s: %s  (via %s, confidence %.2f)\n", field, ex.Value, ex.Strategy, ex.Confidence)
		}
		if len(o.Record.Missing) > 0 {
			fmt.Fprintf(&b, "\nMissing fields: %s\n", strings.Join(o.Record.Missing, ", "))
		}
	}
	if o.ErrKind != "" {
		fmt.Fprintf(&b, "\nError kind: %s\n", o.ErrKind)
	}

	if raw, err := json.MarshalIndent(o, "", "  "); err == nil {
		b.WriteString("\nRaw outcome:\n")
		b.Write(raw)
	}
	return b.String()
}

func handleDomainStatus(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/health", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var health healthResponse
		if err := json.Unmarshal(respBody, &health); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Status: %s\n", health.Status)
		fmt.Fprintf(&b, "Workers: %d/%d active, %d waiting\n",
			health.Runner.Active, health.Runner.MaxWorkers, health.Runner.Waiting)
		fmt.Fprintf(&b, "Browser pages: %d/%d active\n",
			health.Sessions.ActivePages, health.Sessions.MaxPages)
		if len(health.OpenBreakers) == 0 {
			b.WriteString("No domains in cooldown.\n")
		} else {
			b.WriteString("Domains in cooldown:\n")
			for domain, failures := range health.OpenBreakers {
				fmt.Fprintf(&b, "  %s (%d consecutive failures)\n", domain, failures)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}
