package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/dto"
	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/services"
)

type SubscriptionHandler struct {
	cfg           *config.Config
	db            *gorm.DB
	subscriptions *services.SubscriptionService
	provisioner   *services.ProvisionService
}

func NewSubscriptionHandler(cfg *config.Config, db *gorm.DB, subscriptions *services.SubscriptionService, provisioner *services.ProvisionService) *SubscriptionHandler {
	return &SubscriptionHandler{cfg: cfg, db: db, subscriptions: subscriptions, provisioner: provisioner}
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return uuid.Nil, errors.New("missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	return uuid.Parse(sub)
}

// Get returns the caller's subscription with its persisted configs.
func (h *SubscriptionHandler) Get(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	sub, err := h.subscriptions.GetForUser(c.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "No subscription found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(dto.NewSubscriptionResponse(sub))
}

// Refresh runs a panel sync on demand and returns the regenerated configs.
func (h *SubscriptionHandler) Refresh(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	sub, err := h.subscriptions.GetForUser(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No subscription found",
		})
	}

	configs, err := h.provisioner.EnsureProvisioned(c.Context(), sub.ID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotActive):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Subscription is not active",
			})
		case errors.Is(err, services.ErrNotLinked):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Subscription not linked to 3x-ui client",
			})
		case errors.Is(err, services.ErrNoConfigs):
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
				Error: true, Message: "No VPN servers are currently reachable, try again later",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	resp := make([]dto.ConfigResponse, 0, len(configs))
	for i := range configs {
		resp = append(resp, dto.NewConfigResponse(&configs[i]))
	}
	return c.JSON(fiber.Map{"configs": resp})
}

// GetURL hands out the stable public feed URL, assigning the feed token on
// first request.
func (h *SubscriptionHandler) GetURL(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	sub, err := h.subscriptions.GetForUser(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No subscription found",
		})
	}

	token, err := h.subscriptions.EnsureFeedUUID(c.Context(), sub)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(dto.SubscriptionURLResponse{
		SubscriptionURL: h.cfg.PublicBaseURL + "/api/sub/" + token,
	})
}

// Checkout starts a purchase and returns the gateway confirmation URL.
func (h *SubscriptionHandler) Checkout(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.CheckoutRequest
	if err := c.BodyParser(&req); err != nil || req.PlanID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	confirmationURL, err := h.subscriptions.Checkout(c.Context(), userID, req.PlanID)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Plan not found",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: true, Message: "Payment gateway unavailable",
		})
	}

	return c.JSON(dto.CheckoutResponse{ConfirmationURL: confirmationURL})
}

// ListPlans is public catalog data.
func (h *SubscriptionHandler) ListPlans(c *fiber.Ctx) error {
	var plans []models.VpnPlan
	if err := h.db.Where("is_active = true").Order("price ASC").Find(&plans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	resp := make([]dto.PlanResponse, 0, len(plans))
	for i := range plans {
		resp = append(resp, dto.NewPlanResponse(&plans[i]))
	}
	return c.JSON(resp)
}
