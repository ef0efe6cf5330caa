package errors

import "net/http"

// InternalServerError marks a failure that isn't the caller's fault
// and carries no safe-to-echo detail. The webhook route uses it for any
// handler error that is not already a WebhookError. Chat send/edit
// failures in the handlers are logged and do not produce this error.
type InternalServerError struct {
	Detail string
}

func (e *InternalServerError) Error() string { return "internal server error: " + e.Detail }
func (e *InternalServerError) Status() int { return http.StatusInternalServerError }
func (e *InternalServerError) Body() string { return "Internal Server Error" }
func (e *InternalServerError) Loud() bool { return true }

// DatabaseError wraps a persistence failure.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string { return "database error: " + e.Err.Error() }
func (e *DatabaseError) Unwrap() error { return e.Err }
func (e *DatabaseError) Status() int { return http.StatusInternalServerError }
func (e *DatabaseError) Body() string { return "Internal Server Error" }
func (e *DatabaseError) Loud() bool { return true }
