package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
)

type paymentEventsRecorder struct {
	succeeded []string
	canceled  []string
	err       error
}

func (r *paymentEventsRecorder) OnPaymentSucceeded(_ context.Context, paymentID string) error {
	r.succeeded = append(r.succeeded, paymentID)
	return r.err
}

func (r *paymentEventsRecorder) OnPaymentCanceled(_ context.Context, paymentID string) error {
	r.canceled = append(r.canceled, paymentID)
	return r.err
}

func newWebhookApp(cfg *config.Config, payments PaymentEvents) *fiber.App {
	app := fiber.New()
	app.Post("/api/webhooks/yookassa", NewWebhookHandler(cfg, payments).HandleYooKassa)
	return app
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/webhooks/yookassa", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

const succeededBody = `{"type":"notification","event":"payment.succeeded","object":{"id":"2e3f4a5b-pay-1","status":"succeeded","paid":true}}`

func TestWebhookRedeliveryIsAcknowledgedBothTimes(t *testing.T) {
	// The gateway redelivers until it sees 2xx; the second delivery of the
	// same payment must also be acknowledged, not refused.
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	recorder := &paymentEventsRecorder{}
	app := newWebhookApp(cfg, recorder)

	body := []byte(succeededBody)
	sig := signBody(body, "whsec")

	assert.Equal(t, 200, postWebhook(t, app, body, sig))
	assert.Equal(t, 200, postWebhook(t, app, body, sig))
	assert.Equal(t, []string{"2e3f4a5b-pay-1", "2e3f4a5b-pay-1"}, recorder.succeeded)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	recorder := &paymentEventsRecorder{}
	app := newWebhookApp(cfg, recorder)

	status := postWebhook(t, app, []byte(succeededBody), signBody([]byte(succeededBody), "wrong"))

	assert.Equal(t, 401, status)
	assert.Empty(t, recorder.succeeded, "unauthenticated events never reach the service")
}

func TestWebhookRejectsMissingSignatureWhenSecretSet(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	app := newWebhookApp(cfg, &paymentEventsRecorder{})

	assert.Equal(t, 401, postWebhook(t, app, []byte(succeededBody), ""))
}

func TestWebhookRejectsDisallowedSource(t *testing.T) {
	cfg := &config.Config{YooKassaAllowedCIDRs: []string{"185.71.76.0/27"}}
	recorder := &paymentEventsRecorder{}
	app := newWebhookApp(cfg, recorder)

	status := postWebhook(t, app, []byte(succeededBody), "")

	assert.Equal(t, 403, status)
	assert.Empty(t, recorder.succeeded)
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	recorder := &paymentEventsRecorder{}
	app := newWebhookApp(cfg, recorder)

	body := []byte(`{"type":"notification","event":"refund.succeeded","object":{"id":"ref-1"}}`)

	assert.Equal(t, 200, postWebhook(t, app, body, signBody(body, "whsec")))
	assert.Empty(t, recorder.succeeded)
	assert.Empty(t, recorder.canceled)
}

func TestWebhookCanceledEventRoutesToCancel(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	recorder := &paymentEventsRecorder{}
	app := newWebhookApp(cfg, recorder)

	body := []byte(`{"type":"notification","event":"payment.canceled","object":{"id":"pay-2"}}`)

	assert.Equal(t, 200, postWebhook(t, app, body, signBody(body, "whsec")))
	assert.Equal(t, []string{"pay-2"}, recorder.canceled)
	assert.Empty(t, recorder.succeeded)
}

func TestWebhookProcessingFailureAsksForRedelivery(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	recorder := &paymentEventsRecorder{err: errors.New("database unavailable")}
	app := newWebhookApp(cfg, recorder)

	body := []byte(succeededBody)

	assert.Equal(t, 500, postWebhook(t, app, body, signBody(body, "whsec")))
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	cfg := &config.Config{YooKassaWebhookSecret: "whsec"}
	app := newWebhookApp(cfg, &paymentEventsRecorder{})

	body := []byte(`{not json`)

	assert.Equal(t, 400, postWebhook(t, app, body, signBody(body, "whsec")))
}
