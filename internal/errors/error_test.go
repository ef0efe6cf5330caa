package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookErrors_StatusAndLoudness(t *testing.T) {
	cases := []struct {
		name   string
		err    WebhookError
		status int
		body   string
		loud   bool
	}{
		{"bad payload", &BadPayload{Detail: "x"}, http.StatusBadRequest, "bad payload: x", false},
		{"missing header", &MissingHeader{Name: "Twitch-Eventsub-Message-Id"}, http.StatusBadRequest, "missing header: Twitch-Eventsub-Message-Id", false},
		{"invalid header value", &InvalidHeaderValue{Name: "X", Detail: "bad"}, http.StatusBadRequest, "invalid header value for 'X': bad", false},
		{"unknown message type", &UnknownMessageType{Type: "revocation"}, http.StatusBadRequest, "unknown message type: revocation", false},
		{"duplicate message id", &DuplicateMessageID{MessageID: "abc"}, http.StatusNoContent, "", false},
		{"verification failed", &VerificationFailed{Reason: "signature mismatch"}, http.StatusForbidden, "", false},
		{"internal server error", &InternalServerError{Detail: "boom"}, http.StatusInternalServerError, "Internal Server Error", true},
		{"database error", &DatabaseError{Err: errors.New("conn refused")}, http.StatusInternalServerError, "Internal Server Error", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.Status())
			assert.Equal(t, tc.body, tc.err.Body())
			assert.Equal(t, tc.loud, tc.err.Loud())
		})
	}
}

func TestDatabaseError_Unwraps(t *testing.T) {
	sentinel := errors.New("connection reset")
	err := &DatabaseError{Err: sentinel}
	assert.ErrorIs(t, err, sentinel)
}
