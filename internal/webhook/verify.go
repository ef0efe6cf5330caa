package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	stitcherrors "github.com/kzh/stitch/internal/errors"
)

const (
	headerSignature   = "Twitch-Eventsub-Message-Signature"
	headerTimestamp   = "Twitch-Eventsub-Message-Timestamp"
	headerMessageID   = "Twitch-Eventsub-Message-Id"
	headerMessageType = "Twitch-Eventsub-Message-Type"

	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"

	signaturePrefix = "sha256="

	maxTimestampAge  = 600 * time.Second
	maxTimestampSkew = 180 * time.Second
)

// verify pulls the three required headers, rejects a replayed message
// id before spending any more work on it, bounds-checks the timestamp,
// then checks the HMAC. It returns the parsed timestamp every handler
// treats as the event's canonical time.
func (e *Engine) verify(c *gin.Context, body []byte) (time.Time, error) {
	messageID := c.GetHeader(headerMessageID)
	timestampHeader := c.GetHeader(headerTimestamp)
	signatureHeader := c.GetHeader(headerSignature)

	if messageID == "" {
		return time.Time{}, &stitcherrors.MissingHeader{Name: headerMessageID}
	}
	if timestampHeader == "" {
		return time.Time{}, &stitcherrors.MissingHeader{Name: headerTimestamp}
	}
	if signatureHeader == "" {
		return time.Time{}, &stitcherrors.MissingHeader{Name: headerSignature}
	}
	if !isASCII(messageID) || !isASCII(timestampHeader) || !isASCII(signatureHeader) {
		return time.Time{}, &stitcherrors.InvalidHeaderValue{Name: headerMessageID, Detail: "non-ASCII header value"}
	}

	if !e.dedup.Insert(messageID, replayTTL) {
		return time.Time{}, &stitcherrors.DuplicateMessageID{MessageID: messageID}
	}

	timestamp, err := time.Parse(time.RFC3339, timestampHeader)
	if err != nil {
		return time.Time{}, &stitcherrors.InvalidHeaderValue{Name: headerTimestamp, Detail: err.Error()}
	}

	now := time.Now().UTC()
	if now.Sub(timestamp) >= maxTimestampAge {
		return time.Time{}, &stitcherrors.VerificationFailed{Reason: "timestamp too old"}
	}
	if timestamp.Sub(now) > maxTimestampSkew {
		return time.Time{}, &stitcherrors.VerificationFailed{Reason: "timestamp too far in the future"}
	}

	expected := computeSignature(e.secret, messageID, timestampHeader, body)
	got, err := hex.DecodeString(strings.TrimPrefix(signatureHeader, signaturePrefix))
	if err != nil {
		return time.Time{}, &stitcherrors.VerificationFailed{Reason: "malformed signature"}
	}
	if !hmac.Equal(got, expected) {
		return time.Time{}, &stitcherrors.VerificationFailed{Reason: "signature mismatch"}
	}

	return timestamp, nil
}

func computeSignature(secret, messageID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return mac.Sum(nil)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
