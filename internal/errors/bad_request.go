package errors

import "net/http"

// BadPayload marks a request body that failed to decode as JSON, or
// decoded but was structurally unusable.
type BadPayload struct {
	Detail string
}

func (e *BadPayload) Error() string { return "bad payload: " + e.Detail }
func (e *BadPayload) Status() int { return http.StatusBadRequest }
func (e *BadPayload) Body() string { return e.Error() }
func (e *BadPayload) Loud() bool { return false }

// MissingHeader marks a required header that was absent.
type MissingHeader struct {
	Name string
}

func (e *MissingHeader) Error() string { return "missing header: " + e.Name }
func (e *MissingHeader) Status() int { return http.StatusBadRequest }
func (e *MissingHeader) Body() string { return e.Error() }
func (e *MissingHeader) Loud() bool { return false }

// InvalidHeaderValue marks a header present but unusable (non-ASCII,
// unparseable timestamp). A signature that fails to hex-decode is
// reported as VerificationFailed instead.
type InvalidHeaderValue struct {
	Name   string
	Detail string
}

func (e *InvalidHeaderValue) Error() string {
	return "invalid header value for '" + e.Name + "': " + e.Detail
}
func (e *InvalidHeaderValue) Status() int { return http.StatusBadRequest }
func (e *InvalidHeaderValue) Body() string { return e.Error() }
func (e *InvalidHeaderValue) Loud() bool { return false }

// UnknownMessageType marks a Twitch-Eventsub-Message-Type the engine
// does not dispatch (anything but verification/notification).
type UnknownMessageType struct {
	Type string
}

func (e *UnknownMessageType) Error() string { return "unknown message type: " + e.Type }
func (e *UnknownMessageType) Status() int { return http.StatusBadRequest }
func (e *UnknownMessageType) Body() string { return e.Error() }
func (e *UnknownMessageType) Loud() bool { return false }
