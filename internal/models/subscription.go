package models

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "PENDING"
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusExpired   SubscriptionStatus = "EXPIRED"
	StatusCancelled SubscriptionStatus = "CANCELLED"
)

// ValidStatus reports whether s is one of the known subscription states.
func ValidStatus(s SubscriptionStatus) bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Subscription is the billing-side record of a user's VPN access.
// FeedUUID is the capability token for the public subscription feed and is
// immutable once assigned. XUIClientID is the stable identity under which the
// subscription is represented across panel inbounds; it is generated exactly
// once, at activation.
type Subscription struct {
	ID           uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FeedUUID     *string            `gorm:"size:36;uniqueIndex" json:"uuid,omitempty"`
	UserID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"plan_id"`
	Status       SubscriptionStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	IsActive     bool               `gorm:"default:false;index" json:"is_active"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `gorm:"index" json:"end_date"`
	PaymentID    string             `gorm:"size:255;index" json:"payment_id"`
	XUIClientID  string             `gorm:"size:36;index" json:"-"`
	TrafficUsed  int64              `gorm:"default:0" json:"traffic_used"`
	TrafficLimit *int64             `json:"traffic_limit,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	User    User                 `gorm:"foreignKey:UserID" json:"-"`
	Plan    VpnPlan              `gorm:"foreignKey:PlanID" json:"-"`
	Configs []SubscriptionConfig `gorm:"foreignKey:SubscriptionID" json:"-"`
}

// SetStatus changes the status and keeps the derived IsActive flag in sync.
// All status writes must go through here so the two fields never diverge.
func (s *Subscription) SetStatus(status SubscriptionStatus) {
	s.Status = status
	s.IsActive = status == StatusActive
}

// ExpiredAt reports whether the subscription's validity window has passed.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return !s.EndDate.IsZero() && s.EndDate.Before(now)
}
