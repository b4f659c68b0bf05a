package yahoo

import (
	"errors"
	"fmt"
	"net/http"

	"StockSentinel/internal/domain/models"
)

// APIError is a non-success reply from a Yahoo endpoint.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Malformed  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Transient reports whether repeating the request may succeed.
func (e *APIError) Transient() bool {
	if e.Malformed {
		return false
	}
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// errNoPrice marks a well-formed reply that carried no usable price.
var errNoPrice = errors.New("no usable price in response")

// Classify maps a call error onto an outcome tag. Rate limits, server errors,
// timeouts and network failures are transient; unknown symbols and
// malformed payloads are permanent.
func Classify(err error) models.Outcome {
	if err == nil {
		return models.OutcomeSuccess
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Transient() {
			return models.OutcomeTransient
		}
		return models.OutcomePermanent
	}
	if errors.Is(err, errNoPrice) {
		return models.OutcomePermanent
	}
	// Timeouts, resets and refused connections.
	return models.OutcomeTransient
}
