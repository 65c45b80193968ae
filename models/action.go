package models

// Action is one step in a planner-produced action list. The planner is an
// external collaborator: snapshot in, action list out, no side effects of
// its own. The browser manager executes the list before strategies run.
type Action struct {
	// Type is one of "navigate", "click", "scroll", "type", "wait".
	Type string `json:"type"`

	// Selector targets an element for click/type/wait actions.
	Selector string `json:"selector,omitempty"`

	// URL is the navigation target for "navigate".
	URL string `json:"url,omitempty"`

	// Text is the input for "type".
	Text string `json:"text,omitempty"`

	// Direction is "up" or "down" for "scroll". Default "down".
	Direction string `json:"direction,omitempty"`

	// Amount is the number of viewports to scroll. Default 1.
	Amount int `json:"amount,omitempty"`

	// Milliseconds is the wait duration when "wait" has no selector.
	Milliseconds int `json:"milliseconds,omitempty"`
}

// PastFlow is a remembered extraction flow returned by the vector-memory
// collaborator. The recovery controller uses it to bias a retry after the
// load ladder is exhausted; absence of the collaborator degrades to
// ladder-only recovery.
type PastFlow struct {
	// Domain the flow was recorded for.
	Domain string `json:"domain"`

	// FieldSelectors are selectors that produced values on a past success,
	// tried ahead of the profile's own tables on the biased retry.
	FieldSelectors map[string][]string `json:"field_selectors,omitempty"`

	// Actions is an action list that got a past job to extractable state.
	Actions []Action `json:"actions,omitempty"`

	// Score is the memory store's similarity/recency score in [0,1].
	Score float64 `json:"score"`
}
