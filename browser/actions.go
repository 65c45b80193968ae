package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/models"
)

// actionTimeout is the per-action deadline.
const actionTimeout = 10 * time.Second

// executeActions runs an ordered action list on the page. If any action
// fails, it returns an error describing which action failed and how many
// completed.
func executeActions(ctx context.Context, page *rod.Page, actions []models.Action) error {
	for i, action := range actions {
		if err := executeSingleAction(ctx, page, action); err != nil {
			return fmt.Errorf("action %d (%s) failed after %d completed: %w", i, action.Type, i, err)
		}
	}
	return nil
}

// executeSingleAction dispatches a single action with its own timeout.
func executeSingleAction(ctx context.Context, page *rod.Page, action models.Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case "navigate":
		return execNavigate(p, action)
	case "click":
		return execClick(p, action)
	case "scroll":
		return execScroll(p, action)
	case "type":
		return execType(p, action)
	case "wait":
		return execWait(p, action)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func execNavigate(p *rod.Page, action models.Action) error {
	if action.URL == "" {
		return fmt.Errorf("navigate action requires a url")
	}
	if err := p.Navigate(action.URL); err != nil {
		return err
	}
	return p.WaitLoad()
}

// execClick finds the element matching the selector and clicks it.
func execClick(p *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execScroll scrolls the page up or down by the specified number of viewports.
func execScroll(p *rod.Page, action models.Action) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < amount; i++ {
		var scrollDelta int
		if action.Direction == "up" {
			scrollDelta = -viewportHeight
		} else {
			scrollDelta = viewportHeight
		}

		if err := p.Mouse.Scroll(0, float64(scrollDelta), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}

		// Brief pause between scroll steps to let lazy-loaded content trigger.
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// execType focuses the element and types the text into it.
func execType(p *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("type action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	if err := el.Focus(); err != nil {
		return err
	}
	return el.Input(action.Text)
}

// execWait either sleeps for a duration or waits for a CSS selector to appear.
func execWait(p *rod.Page, action models.Action) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	if action.Milliseconds > 0 {
		d := time.Duration(action.Milliseconds) * time.Millisecond
		select {
		case <-time.After(d):
			return nil
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		}
	}
	return nil
}
