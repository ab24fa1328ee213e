package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredentials is wrapped by AuthError when no client id or secret is configured.
var ErrMissingCredentials = errors.New("gateway: missing client credentials")

// AuthError means the marketplace refused our credentials or token.
// It is fatal for the current cycle.
type AuthError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("g2a auth failed during %s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("g2a auth failed during %s (%d): %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("g2a auth failed during %s (%d)", e.Op, e.Status)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError reports a call that kept failing with timeouts, resets,
// 429 or 5xx until the retry budget ran out.
type TransientError struct {
	Op       string
	Attempts int
	Status   int
	Err      error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("g2a %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("g2a %s failed after %d attempts: http %d", e.Op, e.Attempts, e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is a non-retryable HTTP failure.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("g2a %s error (%d): %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("g2a %s error (%d)", e.Op, e.Status)
}

// ConflictError is returned when an offer for the product already exists.
type ConflictError struct {
	ProductID string
	OfferID   string
	Body      string
}

func (e *ConflictError) Error() string {
	if e.OfferID == "" {
		return fmt.Sprintf("offer for product %s already exists (offer id not reported)", e.ProductID)
	}
	return fmt.Sprintf("offer for product %s already exists as %s", e.ProductID, e.OfferID)
}

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func trimBody(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
