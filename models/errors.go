package models

import "fmt"

// Error kinds used in API responses and internal error handling.
const (
	ErrKindNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrKindSelectorNotFound  = "SELECTOR_NOT_FOUND"
	ErrKindAntiBotChallenge  = "ANTI_BOT_CHALLENGE"
	ErrKindParseMismatch     = "PARSE_MISMATCH"
	ErrKindRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrKindDomainCooldown    = "DOMAIN_COOLDOWN"
	ErrKindInvalidJob        = "INVALID_JOB"
	ErrKindBrowserCrash      = "BROWSER_CRASH"
	ErrKindUnauthorized      = "UNAUTHORIZED"
	ErrKindInternal          = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExtractError is the internal error type carrying an error kind.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Kind    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(kind, message string, err error) *ExtractError {
	return &ExtractError{Kind: kind, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ExtractError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Kind: e.Kind, Message: e.Message}
}

// KindOf returns the error kind of err, or ErrKindInternal when err carries
// no kind. Strategy-local errors never reach here; this classifies what the
// recovery controller and the API layer see.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if ee, ok := err.(*ExtractError); ok {
		return ee.Kind
	}
	return ErrKindInternal
}

// IsTerminal reports whether an error kind must be surfaced to the caller
// immediately instead of driving the retry ladder.
func IsTerminal(kind string) bool {
	switch kind {
	case ErrKindInvalidJob, ErrKindRateLimitExceeded, ErrKindDomainCooldown:
		return true
	}
	return false
}
