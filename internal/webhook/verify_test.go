package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stitcherrors "github.com/kzh/stitch/internal/errors"
	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/ttlset"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	dedup := ttlset.New()
	t.Cleanup(dedup.Close)
	return &Engine{
		dedup:  dedup,
		log:    logger.New(logger.Config{Level: slog.LevelError, Format: "text"}),
		secret: "shhh",
	}
}

func sign(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func newVerifyContext(body []byte, messageID, timestamp, signature string) *gin.Context {
	req := httptest.NewRequest(http.MethodPost, "/webhook/twitch", bytes.NewReader(body))
	if messageID != "" {
		req.Header.Set(headerMessageID, messageID)
	}
	if timestamp != "" {
		req.Header.Set(headerTimestamp, timestamp)
	}
	if signature != "" {
		req.Header.Set(headerSignature, signature)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func TestVerify_AcceptsValidSignature(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{"subscription":{"type":"stream.online"}}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := sign(e.secret, "msg-1", ts, body)

	c := newVerifyContext(body, "msg-1", ts, sig)
	got, err := e.verify(c, body)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), got, 2*time.Second)
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := signaturePrefix + "0000000000000000000000000000000000000000000000000000000000000000"

	c := newVerifyContext(body, "msg-2", ts, sig)
	_, err := e.verify(c, body)
	require.Error(t, err)
	var verificationErr *stitcherrors.VerificationFailed
	assert.ErrorAs(t, err, &verificationErr)
}

func TestVerify_RejectsReplayedMessageID(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := sign(e.secret, "msg-3", ts, body)

	first := newVerifyContext(body, "msg-3", ts, sig)
	_, err := e.verify(first, body)
	require.NoError(t, err)

	second := newVerifyContext(body, "msg-3", ts, sig)
	_, err = e.verify(second, body)
	require.Error(t, err)
	var dup *stitcherrors.DuplicateMessageID
	assert.ErrorAs(t, err, &dup)
}

func TestVerify_RejectsMissingHeader(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	c := newVerifyContext(body, "", "2026-01-01T00:00:00Z", "sha256=abc")
	_, err := e.verify(c, body)
	require.Error(t, err)
	var missing *stitcherrors.MissingHeader
	assert.ErrorAs(t, err, &missing)
}

func TestVerify_RejectsStaleTimestamp(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	ts := time.Now().UTC().Add(-20 * time.Minute).Format(time.RFC3339)
	sig := sign(e.secret, "msg-4", ts, body)

	c := newVerifyContext(body, "msg-4", ts, sig)
	_, err := e.verify(c, body)
	require.Error(t, err)
	var verificationErr *stitcherrors.VerificationFailed
	assert.ErrorAs(t, err, &verificationErr)
}

func TestVerify_RejectsFutureTimestamp(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	ts := time.Now().UTC().Add(10 * time.Minute).Format(time.RFC3339)
	sig := sign(e.secret, "msg-5", ts, body)

	c := newVerifyContext(body, "msg-5", ts, sig)
	_, err := e.verify(c, body)
	require.Error(t, err)
	var verificationErr *stitcherrors.VerificationFailed
	assert.ErrorAs(t, err, &verificationErr)
}

func newWebhookRequest(body []byte, messageID, timestamp, signature, messageType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/twitch", bytes.NewReader(body))
	req.Header.Set(headerMessageID, messageID)
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerMessageType, messageType)
	return req
}

func TestWebhook_ChallengeEchoedAsRawBody(t *testing.T) {
	e := testEngine(t)
	router := e.Router()

	body := []byte(`{"challenge":"x"}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := sign(e.secret, "m1", ts, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newWebhookRequest(body, "m1", ts, sig, messageTypeVerification))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "x", w.Body.String())
}

func TestWebhook_ReplayedMessageIDReturns204(t *testing.T) {
	e := testEngine(t)
	router := e.Router()

	body := []byte(`{"challenge":"x"}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := sign(e.secret, "m1", ts, body)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, newWebhookRequest(body, "m1", ts, sig, messageTypeVerification))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, newWebhookRequest(body, "m1", ts, sig, messageTypeVerification))
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestWebhook_BadSignatureReturns403EmptyBody(t *testing.T) {
	e := testEngine(t)
	router := e.Router()

	body := []byte(`{}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := signaturePrefix + "0000000000000000000000000000000000000000000000000000000000000000"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newWebhookRequest(body, "m2", ts, sig, messageTypeNotification))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWebhook_RevocationReturns400(t *testing.T) {
	e := testEngine(t)
	router := e.Router()

	body := []byte(`{}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := sign(e.secret, "m3", ts, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newWebhookRequest(body, "m3", ts, sig, "revocation"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify_RejectsMalformedTimestamp(t *testing.T) {
	e := testEngine(t)
	body := []byte(`{}`)
	sig := sign(e.secret, "msg-6", "not-a-timestamp", body)

	c := newVerifyContext(body, "msg-6", "not-a-timestamp", sig)
	_, err := e.verify(c, body)
	require.Error(t, err)
	var invalid *stitcherrors.InvalidHeaderValue
	assert.ErrorAs(t, err, &invalid)
}
