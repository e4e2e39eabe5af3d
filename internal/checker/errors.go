package checker

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy for one upstream attempt.
type Category string

const (
	// CategoryTimeout indicates the attempt hit its hard timeout
	CategoryTimeout Category = "timeout"
	// CategoryTransport indicates a connection-level failure
	CategoryTransport Category = "transport"
	// CategoryStatus indicates a non-2xx response
	CategoryStatus Category = "upstream_status"
	// CategoryRateLimited indicates the endpoint answered 429
	CategoryRateLimited Category = "rate_limited"
	// CategoryBadPayload indicates a body we could not interpret
	CategoryBadPayload Category = "bad_payload"
	// CategoryCanceled indicates the caller's context ended
	CategoryCanceled Category = "canceled"
)

var (
	errMissingStatus = errors.New("payload carries no availability field")
	errNotObject     = errors.New("payload is not a JSON object")
)

// FetchError describes one failed attempt. It never escapes Check; it is
// logged and counted, and the outcome degrades to unavailable.
type FetchError struct {
	Category   Category
	Domain     string
	Attempt    int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("check %s attempt %d [%s]: status %d", e.Domain, e.Attempt, e.Category, e.StatusCode)
	}
	return fmt.Sprintf("check %s attempt %d [%s]: %v", e.Domain, e.Attempt, e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CategoryOf extracts the category of a FetchError, or "" for other errors.
func CategoryOf(err error) Category {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
