package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/dto"
	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/services"
)

// FeedHandler serves the anonymous subscription feed consumed by VPN client
// apps. The feed UUID is the only credential; responses never leak whether a
// miss was an unknown token or a non-consumable subscription.
type FeedHandler struct {
	cfg           *config.Config
	subscriptions *services.SubscriptionService
	provisioner   *services.ProvisionService
}

func NewFeedHandler(cfg *config.Config, subscriptions *services.SubscriptionService, provisioner *services.ProvisionService) *FeedHandler {
	return &FeedHandler{cfg: cfg, subscriptions: subscriptions, provisioner: provisioner}
}

func (h *FeedHandler) Serve(c *fiber.Ctx) error {
	feedUUID := c.Params("uuid")

	sub, err := h.subscriptions.GetByFeedUUID(c.Context(), feedUUID)
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	if code, msg := feedGate(sub, time.Now().UTC()); code != 0 {
		return c.Status(code).JSON(dto.ErrorResponse{
			Error: true, Message: msg,
		})
	}

	configs := sub.Configs
	if len(configs) == 0 && sub.XUIClientID != "" {
		// Lazy repair: an activated subscription whose provisioning job has
		// not landed yet gets synced on first poll.
		configs, err = h.provisioner.EnsureProvisioned(c.Context(), sub.ID)
		if err != nil {
			configs = nil
		}
	}
	if len(configs) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No configs available yet, retry in a few minutes",
		})
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set("Profile-Update-Interval", "12")
	c.Set("Subscription-Userinfo", UserInfoHeader(sub))
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s-%s.txt"`, h.cfg.FeedNamePrefix, shortToken(feedUUID)))

	return c.SendString(FeedBody(configs))
}

// feedGate decides whether a resolved subscription may be served, returning
// the rejecting status and message, or 0 when servable. An ACTIVE
// subscription past its end date is already expired even if the sweep has
// not caught up with it yet.
func feedGate(sub *models.Subscription, now time.Time) (int, string) {
	switch sub.Status {
	case models.StatusActive:
		if sub.ExpiredAt(now) {
			return fiber.StatusForbidden, "Subscription expired"
		}
		return 0, ""
	case models.StatusExpired:
		return fiber.StatusForbidden, "Subscription expired"
	default:
		// PENDING and CANCELLED are indistinguishable from unknown tokens.
		return fiber.StatusNotFound, "Subscription not found"
	}
}

// FeedBody renders config URIs in stored order, newline-joined and
// base64-encoded, the format v2ray-family clients poll.
func FeedBody(configs []models.SubscriptionConfig) string {
	uris := make([]string, 0, len(configs))
	for i := range configs {
		uris = append(uris, configs[i].ConfigURL)
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(uris, "\n")))
}

// UserInfoHeader renders the Subscription-Userinfo header clients use to show
// quota and expiry.
func UserInfoHeader(sub *models.Subscription) string {
	var total int64
	if sub.TrafficLimit != nil {
		total = *sub.TrafficLimit
	}
	return fmt.Sprintf("upload=0; download=%d; total=%d; expire=%d",
		sub.TrafficUsed, total, sub.EndDate.Unix())
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
