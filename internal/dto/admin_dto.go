package dto

import (
	"github.com/google/uuid"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

type PanelRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	APIURL   string `json:"api_url"`
	Location string `json:"location"`
	IsActive *bool  `json:"is_active"`
}

// PanelResponse never carries the password back out.
type PanelResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Username string    `json:"username"`
	APIURL   string    `json:"api_url"`
	Location string    `json:"location"`
	IsActive bool      `json:"is_active"`
}

type TestConnectionResponse struct {
	Success      bool   `json:"success"`
	LatencyMs    int64  `json:"latency_ms"`
	InboundCount int    `json:"inbound_count"`
	Error        string `json:"error,omitempty"`
}

type PlanRequest struct {
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	DurationDays int      `json:"duration_days"`
	MaxDevices   int      `json:"max_devices"`
	MaxBandwidth int64    `json:"max_bandwidth"`
	Protocols    []string `json:"protocols"`
	IsActive     *bool    `json:"is_active"`
}

type ServerRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Protocol    string `json:"protocol"`
	OutboundTag string `json:"outbound_tag"`
	MaxClients  int    `json:"max_clients"`
	Priority    int    `json:"priority"`
	IsActive    *bool  `json:"is_active"`
}

func NewPanelResponse(p *models.XUIPanel) PanelResponse {
	return PanelResponse{
		ID:       p.ID,
		Name:     p.Name,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		APIURL:   p.APIURL,
		Location: p.Location,
		IsActive: p.IsActive,
	}
}
