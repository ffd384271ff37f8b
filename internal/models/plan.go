package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// VpnPlan is a catalog entry. Read-only to the provisioning core.
type VpnPlan struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Price        float64        `gorm:"not null" json:"price"`
	Currency     string         `gorm:"size:3;default:'RUB'" json:"currency"`
	DurationDays int            `gorm:"not null" json:"duration_days"`
	MaxDevices   int            `gorm:"default:3" json:"max_devices"`
	MaxBandwidth int64          `gorm:"default:0" json:"max_bandwidth"` // bytes, 0 = unlimited
	Protocols    datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"protocols"`
	IsActive     bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ProtocolList decodes the plan's protocol filter. An empty list means the
// plan allows every protocol the panels expose.
func (p *VpnPlan) ProtocolList() []string {
	if len(p.Protocols) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(p.Protocols, &list); err != nil {
		return nil
	}
	return list
}
