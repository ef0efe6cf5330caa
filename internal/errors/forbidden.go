package errors

import "net/http"

// VerificationFailed marks a header/signature/timestamp check that
// failed. The HTTP body is always empty; no detail is echoed back to
// the caller.
type VerificationFailed struct {
	Reason string
}

func (e *VerificationFailed) Error() string { return "verification failed: " + e.Reason }
func (e *VerificationFailed) Status() int { return http.StatusForbidden }
func (e *VerificationFailed) Body() string { return "" }
func (e *VerificationFailed) Loud() bool { return false }
