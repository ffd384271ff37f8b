package models

import (
	"time"

	"github.com/google/uuid"
)

// ServerRecord is an admin-managed outbound catalog entry used as placement
// input when deciding where new clients go.
type ServerRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Location    string    `gorm:"size:100" json:"location"`
	Host        string    `gorm:"size:255;not null" json:"host"`
	Port        int       `gorm:"not null" json:"port"`
	Protocol    string    `gorm:"size:20" json:"protocol"`
	OutboundTag string    `gorm:"size:100" json:"outbound_tag"`
	MaxClients  int       `gorm:"default:0" json:"max_clients"` // 0 = unlimited
	CurrentLoad int       `gorm:"default:0" json:"current_load"`
	Priority    int       `gorm:"default:0;index" json:"priority"`
	IsActive    bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasCapacity reports whether the server can take another client.
func (s *ServerRecord) HasCapacity() bool {
	return s.MaxClients == 0 || s.CurrentLoad < s.MaxClients
}
