package errors

import "net/http"

// DuplicateMessageID marks a replayed Twitch-Eventsub-Message-Id: the
// request short-circuits with 204 and is not logged at warn.
type DuplicateMessageID struct {
	MessageID string
}

func (e *DuplicateMessageID) Error() string { return "duplicate message id: " + e.MessageID }
func (e *DuplicateMessageID) Status() int { return http.StatusNoContent }
func (e *DuplicateMessageID) Body() string { return "" }
func (e *DuplicateMessageID) Loud() bool { return false }
