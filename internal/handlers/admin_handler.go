package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/dto"
	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/queue"
	"github.com/safesurf-vpn/safesurf-backend/internal/services"
)

type AdminHandler struct {
	db            *gorm.DB
	panels        *services.PanelService
	subscriptions *services.SubscriptionService
	jobs          *queue.Queue
}

func NewAdminHandler(db *gorm.DB, panels *services.PanelService, subscriptions *services.SubscriptionService, jobs *queue.Queue) *AdminHandler {
	return &AdminHandler{db: db, panels: panels, subscriptions: subscriptions, jobs: jobs}
}

func parseIDParam(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

// ---- Panels ----

func (h *AdminHandler) ListPanels(c *fiber.Ctx) error {
	panels, err := h.panels.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	resp := make([]dto.PanelResponse, 0, len(panels))
	for i := range panels {
		resp = append(resp, dto.NewPanelResponse(&panels[i]))
	}
	return c.JSON(resp)
}

func (h *AdminHandler) CreatePanel(c *fiber.Ctx) error {
	var req dto.PanelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.Name == "" || req.Host == "" || req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "name, host, username and password are required",
		})
	}

	panel, err := h.panels.Create(c.Context(), &req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewPanelResponse(panel))
}

func (h *AdminHandler) UpdatePanel(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid panel id",
		})
	}

	var req dto.PanelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	panel, err := h.panels.Update(c.Context(), id, &req)
	if err != nil {
		if errors.Is(err, services.ErrPanelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Panel not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(dto.NewPanelResponse(panel))
}

func (h *AdminHandler) DeletePanel(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid panel id",
		})
	}

	if err := h.panels.Delete(c.Context(), id); err != nil {
		if errors.Is(err, services.ErrPanelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Panel not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(fiber.Map{"message": "Panel deleted"})
}

func (h *AdminHandler) TestPanel(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid panel id",
		})
	}

	result, err := h.panels.TestConnection(c.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPanelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Panel not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(result)
}

// ---- Plans ----

func (h *AdminHandler) CreatePlan(c *fiber.Ctx) error {
	var req dto.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.Name == "" || req.DurationDays <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "name and a positive duration_days are required",
		})
	}

	plan := models.VpnPlan{
		ID:           uuid.New(),
		Name:         req.Name,
		Price:        req.Price,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		MaxDevices:   req.MaxDevices,
		MaxBandwidth: req.MaxBandwidth,
		IsActive:     true,
	}
	if plan.Currency == "" {
		plan.Currency = "RUB"
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	if protocols, err := protocolsJSON(req.Protocols); err == nil {
		plan.Protocols = protocols
	}

	if err := h.db.Create(&plan).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewPlanResponse(&plan))
}

func (h *AdminHandler) UpdatePlan(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid plan id",
		})
	}

	var plan models.VpnPlan
	if err := h.db.First(&plan, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Plan not found",
		})
	}

	var req dto.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.Name != "" {
		plan.Name = req.Name
	}
	if req.Price > 0 {
		plan.Price = req.Price
	}
	if req.Currency != "" {
		plan.Currency = req.Currency
	}
	if req.DurationDays > 0 {
		plan.DurationDays = req.DurationDays
	}
	if req.MaxDevices > 0 {
		plan.MaxDevices = req.MaxDevices
	}
	if req.MaxBandwidth >= 0 {
		plan.MaxBandwidth = req.MaxBandwidth
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	if req.Protocols != nil {
		if protocols, err := protocolsJSON(req.Protocols); err == nil {
			plan.Protocols = protocols
		}
	}

	if err := h.db.Save(&plan).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(dto.NewPlanResponse(&plan))
}

func (h *AdminHandler) DeletePlan(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid plan id",
		})
	}

	// Plans referenced by subscriptions are retired, not removed.
	result := h.db.Model(&models.VpnPlan{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Plan not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Plan deactivated"})
}

// ---- Servers ----

func (h *AdminHandler) ListServers(c *fiber.Ctx) error {
	var servers []models.ServerRecord
	if err := h.db.Order("priority DESC, name ASC").Find(&servers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(servers)
}

func (h *AdminHandler) CreateServer(c *fiber.Ctx) error {
	var req dto.ServerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.Name == "" || req.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "name and host are required",
		})
	}

	server := models.ServerRecord{
		ID:          uuid.New(),
		Name:        req.Name,
		Location:    req.Location,
		Host:        req.Host,
		Port:        req.Port,
		Protocol:    req.Protocol,
		OutboundTag: req.OutboundTag,
		MaxClients:  req.MaxClients,
		Priority:    req.Priority,
		IsActive:    true,
	}
	if req.IsActive != nil {
		server.IsActive = *req.IsActive
	}

	if err := h.db.Create(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(server)
}

func (h *AdminHandler) DeleteServer(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid server id",
		})
	}

	result := h.db.Delete(&models.ServerRecord{}, "id = ?", id)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Server not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Server deleted"})
}

// ---- Subscriptions ----

func (h *AdminHandler) ListSubscriptions(c *fiber.Ctx) error {
	query := h.db.Preload("Plan").Order("created_at DESC").Limit(200)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var subs []models.Subscription
	if err := query.Find(&subs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	resp := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		resp = append(resp, dto.NewSubscriptionResponse(&subs[i]))
	}
	return c.JSON(resp)
}

func (h *AdminHandler) UpdateSubscriptionStatus(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid subscription id",
		})
	}

	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	err := h.subscriptions.UpdateStatus(c.Context(), id, models.SubscriptionStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid status value",
			})
		case errors.Is(err, services.ErrSubscriptionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(fiber.Map{"message": "Status updated"})
}

func (h *AdminHandler) ExtendSubscription(c *fiber.Ctx) error {
	id, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid subscription id",
		})
	}

	var req dto.ExtendRequest
	if err := c.BodyParser(&req); err != nil || req.Days <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "days must be a positive integer",
		})
	}

	if err := h.subscriptions.Extend(c.Context(), id, req.Days); err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(fiber.Map{"message": "Subscription extended"})
}

// ---- Queue ----

func (h *AdminHandler) QueueStats(c *fiber.Ctx) error {
	queued, processing, dead, err := h.jobs.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(fiber.Map{
		"queued":     queued,
		"processing": processing,
		"dead":       dead,
	})
}

func protocolsJSON(protocols []string) (datatypes.JSON, error) {
	if protocols == nil {
		return datatypes.JSON("[]"), nil
	}
	raw, err := json.Marshal(protocols)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
