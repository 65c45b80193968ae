// Package planner is the client for the external action-planner
// collaborator: page state in, ordered action list out. The planner keeps
// no state and performs no page mutation of its own; the browser manager
// executes whatever it suggests.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Client talks to an OpenAI-compatible chat API.
type Client struct {
	cfg        config.PlannerConfig
	httpClient *http.Client
}

// NewClient creates a planner client. Pass nil to use a default
// http.Client bounded by the configured timeout.
func NewClient(cfg config.PlannerConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// planOutput is the JSON shape the planner is asked to produce.
type planOutput struct {
	Actions []models.Action `json:"actions"`
}

const systemPrompt = `You are a browser action planner for a real-estate listing extractor. Given a page's URL, title and HTML, suggest the minimal ordered list of actions needed to make the listing's price, address and facts visible in the DOM.

Return ONLY valid JSON of the form {"actions": [...]} where each action is one of:
- {"type": "click", "selector": "..."}
- {"type": "scroll", "direction": "down", "amount": 1}
- {"type": "type", "selector": "...", "text": "..."}
- {"type": "wait", "selector": "..."} or {"type": "wait", "milliseconds": 500}
- {"type": "navigate", "url": "..."}

Return {"actions": []} when the listing is already fully visible. Never suggest more than 5 actions.`

// maxPlanHTML bounds how much page HTML is sent to the planner.
const maxPlanHTML = 30_000

// Plan implements browser.Planner.
func (c *Client) Plan(ctx context.Context, pageURL, domain, title, html string) ([]models.Action, error) {
	if len(html) > maxPlanHTML {
		html = html[:maxPlanHTML]
	}
	user := fmt.Sprintf("URL: %s\nDomain: %s\nTitle: %s\n\nHTML:\n%s", pageURL, domain, title, html)

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create plan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read planner response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("planner API returned %d: %s", resp.StatusCode, firstLine(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parse planner response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}

	var out planOutput
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("planner returned invalid action JSON: %w", err)
	}
	return sanitize(out.Actions), nil
}

// sanitize drops malformed actions and caps the list so a confused planner
// cannot drive the session in circles.
func sanitize(actions []models.Action) []models.Action {
	const maxActions = 5
	out := make([]models.Action, 0, len(actions))
	for _, a := range actions {
		switch a.Type {
		case "click", "type":
			if a.Selector == "" {
				continue
			}
		case "navigate":
			if a.URL == "" {
				continue
			}
		case "wait":
			if a.Selector == "" && a.Milliseconds <= 0 {
				continue
			}
		case "scroll":
		default:
			continue
		}
		out = append(out, a)
		if len(out) == maxActions {
			break
		}
	}
	return out
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
