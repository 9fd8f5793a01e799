package connectors

import (
	"errors"
	"fmt"
)

// APIError is a non-retryable broker response: a 4xx client rejection other
// than 429. The inline retry layer never retries these; callers decide
// whether the durable queue should.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker rejected request: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsClientRejection reports whether err is a deterministic client rejection
// (e.g. market closed for the instrument, wash-trade prevention, invalid
// parameters) rather than a transient failure.
func IsClientRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
