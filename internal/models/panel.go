package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// XUIPanel holds credentials and endpoint for one external 3x-ui server.
// Inbounds are enumerated live through the panel API, never stored here.
type XUIPanel struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Host      string    `gorm:"size:255;not null" json:"host"`
	Port      int       `gorm:"not null" json:"port"`
	Username  string    `gorm:"size:100;not null" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	APIURL    string    `gorm:"size:512" json:"api_url"`
	Location  string    `gorm:"size:100" json:"location"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BaseURL returns the panel API root without a trailing slash.
func (p *XUIPanel) BaseURL() string {
	if p.APIURL != "" {
		return strings.TrimRight(p.APIURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}
