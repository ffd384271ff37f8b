package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/dto"
	"github.com/safesurf-vpn/safesurf-backend/internal/yookassa"
)

// PaymentEvents is the slice of the subscription service the webhook needs.
type PaymentEvents interface {
	OnPaymentSucceeded(ctx context.Context, paymentID string) error
	OnPaymentCanceled(ctx context.Context, paymentID string) error
}

type WebhookHandler struct {
	cfg      *config.Config
	payments PaymentEvents
}

func NewWebhookHandler(cfg *config.Config, payments PaymentEvents) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, payments: payments}
}

// HandleYooKassa receives payment notifications. Unknown events are
// acknowledged so the gateway stops redelivering them; processing failures
// return 500 so it retries.
func (h *WebhookHandler) HandleYooKassa(c *fiber.Ctx) error {
	if !yookassa.AllowedSource(c.IP(), h.cfg.YooKassaAllowedCIDRs) {
		slog.Warn("webhook from unexpected source", "ip", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Forbidden",
		})
	}

	body := c.Body()

	if h.cfg.YooKassaWebhookSecret != "" {
		if !yookassa.VerifySignature(body, c.Get("X-Webhook-Signature"), h.cfg.YooKassaWebhookSecret) {
			slog.Warn("webhook signature mismatch", "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid signature",
			})
		}
	}

	var notification yookassa.WebhookNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid webhook payload",
		})
	}

	var err error
	switch notification.Event {
	case yookassa.EventPaymentSucceeded:
		err = h.payments.OnPaymentSucceeded(c.Context(), notification.Object.ID)
	case yookassa.EventPaymentCanceled:
		err = h.payments.OnPaymentCanceled(c.Context(), notification.Object.ID)
	default:
		slog.Info("ignoring webhook event", "event", notification.Event)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if err != nil {
		slog.Error("webhook processing failed",
			"event", notification.Event,
			"yookassa_id", notification.Object.ID,
			"action", "webhook",
			"error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
