package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionConfig is one provisioned inbound for a subscription: the
// connection URI, its QR code and the server details it points at. The sync
// orchestrator replaces the full row set for a subscription in a single
// transaction, so readers never observe a partial mix of old and new configs.
type SubscriptionConfig struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index" json:"subscription_id"`
	PanelID        uuid.UUID `gorm:"type:uuid;not null;index" json:"panel_id"`
	InboundID      int       `gorm:"not null" json:"inbound_id"`
	Protocol       string    `gorm:"size:20;not null" json:"protocol"`
	ConfigURL      string    `gorm:"type:text;not null" json:"config_url"`
	QRCode         string    `gorm:"type:text" json:"qr_code"`
	Host           string    `gorm:"size:255" json:"host"`
	Port           int       `json:"port"`
	Remark         string    `gorm:"size:255" json:"remark"`
	Position       int       `gorm:"not null" json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}
