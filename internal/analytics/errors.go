package analytics

import "errors"

// Error taxonomy of Orchestrator.Run. Callers match with errors.Is.
var (
	// ErrInvalidRequest covers unknown domains, out-of-range horizons and malformed parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingParameter is returned when the tenant identifier is absent.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrInternalFailure wraps data-source errors and any unexpected failure.
	ErrInternalFailure = errors.New("internal failure")
)

// StatusOf maps an error from Run onto a short label for metrics and logs.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal_failure"
	}
}
