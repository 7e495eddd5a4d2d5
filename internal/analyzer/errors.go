package analyzer

import (
	"errors"
	"fmt"
	"net/http"

	"pinganalyst/internal/services/llm"
)

var (
	// ErrNoFrames is returned before any request when the frame list is empty.
	ErrNoFrames = errors.New("no frames provided")
	// ErrRateLimited is the provider's 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrCreditsExhausted is the provider's 402.
	ErrCreditsExhausted = errors.New("credits exhausted")
	// ErrGateway covers every other non-2xx provider status.
	ErrGateway = errors.New("gateway error")
	// ErrNoContent means the provider answered without usable text.
	ErrNoContent = errors.New("no content")
	// ErrSchemaMismatch means the reply was not a recognizable analysis object.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Error carries a user-facing message next to the classified cause.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PublicMessage returns the message shown to API clients and the dashboard.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Message
	}
	if errors.Is(err, ErrNoFrames) {
		return "No frames provided"
	}
	return err.Error()
}

// HTTPStatus maps an analysis failure onto the status returned to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNoFrames):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCreditsExhausted):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// classify turns a backend failure into an *Error. Context errors and
// transport errors pass through wrapped so retry classification still sees
// them.
func classify(err error) error {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			return &Error{Kind: ErrRateLimited, Status: statusErr.StatusCode, Message: "Rate limit exceeded. Please try again in a moment.", Err: err}
		case http.StatusPaymentRequired:
			return &Error{Kind: ErrCreditsExhausted, Status: statusErr.StatusCode, Message: "AI usage limit reached. Please add credits in Settings.", Err: err}
		default:
			return &Error{Kind: ErrGateway, Status: statusErr.StatusCode, Message: fmt.Sprintf("AI gateway error: %d", statusErr.StatusCode), Err: err}
		}
	}
	var empty *llm.EmptyContentError
	if errors.As(err, &empty) {
		return &Error{Kind: ErrNoContent, Message: "No content in AI response", Err: err}
	}
	return fmt.Errorf("analyze frames: %w", err)
}
