package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

type CheckoutRequest struct {
	PlanID uuid.UUID `json:"plan_id"`
}

type CheckoutResponse struct {
	ConfirmationURL string `json:"confirmation_url"`
}

type ConfigResponse struct {
	Protocol  string `json:"protocol"`
	ConfigURL string `json:"config_url"`
	QRCode    string `json:"qr_code,omitempty"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Remark    string `json:"remark"`
}

type SubscriptionResponse struct {
	ID           uuid.UUID        `json:"id"`
	Status       string           `json:"status"`
	IsActive     bool             `json:"is_active"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      time.Time        `json:"end_date"`
	TrafficUsed  int64            `json:"traffic_used"`
	TrafficLimit *int64           `json:"traffic_limit,omitempty"`
	Plan         *PlanResponse    `json:"plan,omitempty"`
	Configs      []ConfigResponse `json:"configs"`
}

type PlanResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"duration_days"`
	MaxDevices   int       `json:"max_devices"`
	MaxBandwidth int64     `json:"max_bandwidth"`
	Protocols    []string  `json:"protocols"`
}

type SubscriptionURLResponse struct {
	SubscriptionURL string `json:"subscription_url"`
}

type ExtendRequest struct {
	Days int `json:"days"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func NewConfigResponse(c *models.SubscriptionConfig) ConfigResponse {
	return ConfigResponse{
		Protocol:  c.Protocol,
		ConfigURL: c.ConfigURL,
		QRCode:    c.QRCode,
		Host:      c.Host,
		Port:      c.Port,
		Remark:    c.Remark,
	}
}

func NewPlanResponse(p *models.VpnPlan) PlanResponse {
	return PlanResponse{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		DurationDays: p.DurationDays,
		MaxDevices:   p.MaxDevices,
		MaxBandwidth: p.MaxBandwidth,
		Protocols:    p.ProtocolList(),
	}
}

func NewSubscriptionResponse(sub *models.Subscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:           sub.ID,
		Status:       string(sub.Status),
		IsActive:     sub.IsActive,
		StartDate:    sub.StartDate,
		EndDate:      sub.EndDate,
		TrafficUsed:  sub.TrafficUsed,
		TrafficLimit: sub.TrafficLimit,
		Configs:      make([]ConfigResponse, 0, len(sub.Configs)),
	}
	if sub.Plan.ID != uuid.Nil {
		plan := NewPlanResponse(&sub.Plan)
		resp.Plan = &plan
	}
	for i := range sub.Configs {
		resp.Configs = append(resp.Configs, NewConfigResponse(&sub.Configs[i]))
	}
	return resp
}
