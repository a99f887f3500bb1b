// Package errs holds the error taxonomy shared by the pipeline packages.
// Every error type carries an HTTP status via StatusCode so transports can
// map it without importing the producing package.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ModelNotFoundError is returned when a model id is not in the registry.
type ModelNotFoundError struct{ ID string }

func (e ModelNotFoundError) Error() string { return "model not found: " + e.ID }

func (e ModelNotFoundError) StatusCode() int { return http.StatusNotFound }

// ModelNotFound constructs a ModelNotFoundError.
func ModelNotFound(id string) error { return ModelNotFoundError{ID: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e ModelNotFoundError
	return errors.As(err, &e)
}

// RequestTimeoutError is returned when a model does not finish within the
// configured timeout.
type RequestTimeoutError struct {
	ModelID string
	Timeout time.Duration
}

func (e RequestTimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.ModelID, e.Timeout)
}

func (e RequestTimeoutError) StatusCode() int { return http.StatusGatewayTimeout }

// RequestTimeout constructs a RequestTimeoutError.
func RequestTimeout(modelID string, d time.Duration) error {
	return RequestTimeoutError{ModelID: modelID, Timeout: d}
}

// IsRequestTimeout reports whether err is a model timeout.
func IsRequestTimeout(err error) bool {
	var e RequestTimeoutError
	return errors.As(err, &e)
}

// RateLimitError signals that a limiter rejected a request outright instead
// of queueing it.
type RateLimitError struct {
	ModelID string
	Wait    time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (retry in %s)", e.ModelID, e.Wait)
}

func (e RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// RateLimited constructs a RateLimitError.
func RateLimited(modelID string, wait time.Duration) error {
	return RateLimitError{ModelID: modelID, Wait: wait}
}

// IsRateLimited reports whether err is a rate limit rejection.
func IsRateLimited(err error) bool {
	var e RateLimitError
	return errors.As(err, &e)
}

// CircuitOpenError is returned while a model's circuit breaker is open.
type CircuitOpenError struct{ ModelID string }

func (e CircuitOpenError) Error() string { return "circuit open: " + e.ModelID }

func (e CircuitOpenError) StatusCode() int { return http.StatusServiceUnavailable }

// CircuitOpen constructs a CircuitOpenError.
func CircuitOpen(modelID string) error { return CircuitOpenError{ModelID: modelID} }

// IsCircuitOpen reports whether err comes from an open breaker.
func IsCircuitOpen(err error) bool {
	var e CircuitOpenError
	return errors.As(err, &e)
}

// TooBusyError signals backpressure: a bounded queue is full.
type TooBusyError struct{ What string }

func (e TooBusyError) Error() string { return "too busy: " + e.What }

func (e TooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// TooBusy constructs a TooBusyError.
func TooBusy(what string) error { return TooBusyError{What: what} }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	var e TooBusyError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing runtime dependency (e.g. a
// binary built without llama support).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// DependencyUnavailable constructs a dependency-unavailable error.
func DependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// ErrIncompleteStream is recorded when a model closes its stream without a
// terminal chunk.
var ErrIncompleteStream = errors.New("model stream ended without a terminal chunk")
