package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment records one gateway payment attempt. YooKassaID is the external
// gateway reference carried by webhook notifications.
type Payment struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	SubscriptionID *uuid.UUID `gorm:"type:uuid;index" json:"subscription_id,omitempty"`
	Amount         float64    `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"size:3;default:'RUB'" json:"currency"`
	Status         string     `gorm:"size:20;default:'pending'" json:"status"`
	YooKassaID     string     `gorm:"size:255;uniqueIndex" json:"yookassa_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
