package broker

import (
	"errors"
	"fmt"
)

// Sentinel errors for the broker error taxonomy. Callers classify with
// errors.Is; only ErrNotConnected is fatal to a whole run.
var (
	// ErrStalePrice indicates the price feed returned a missing or
	// non-finite value. Recoverable at the call site by falling back to
	// the last known bar close.
	ErrStalePrice = errors.New("stale or missing price")

	// ErrOrderRejected indicates the broker declined an order. Terminal
	// for that symbol's lifecycle this run.
	ErrOrderRejected = errors.New("order rejected")

	// ErrNotConnected indicates the gateway session is absent or expired.
	// Fatal to the run: no symbol processing or cleanup is possible.
	ErrNotConnected = errors.New("broker not connected")

	// ErrFillTimeout indicates an accepted order did not report a fill
	// within the bounded wait.
	ErrFillTimeout = errors.New("timed out waiting for fill")
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway API error: status %d: %s", e.Status, e.Body)
}

// IsPermanentAPIError reports whether an error is a 4xx gateway response
// that retrying cannot fix (429 excepted).
func IsPermanentAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
	}
	return false
}
