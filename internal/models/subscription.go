package models

import "time"

// Subscription statuses.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is a recurring service a user pays for. EndDate marks the
// day the current term expires and drives the renewal reminder sweeps.
type Subscription struct {
	BaseModel

	UserID   string    `gorm:"type:uuid;index;not null" json:"user_id"`
	Name     string    `gorm:"type:varchar(255);not null" json:"name"`
	Price    float64   `gorm:"not null" json:"price"`
	Currency string    `gorm:"type:varchar(8);default:'USD'" json:"currency"`
	Status   string    `gorm:"type:varchar(32);default:'active';index" json:"status"`
	EndDate  time.Time `gorm:"index;not null" json:"end_date"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
