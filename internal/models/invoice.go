package models

import "time"

// Invoice statuses.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusVoid    = "void"
)

// Invoice is a payment obligation tied to a subscription. DueDate drives
// the payment-due and overdue reminder sweeps.
type Invoice struct {
	BaseModel

	UserID         string    `gorm:"type:uuid;index;not null" json:"user_id"`
	SubscriptionID string    `gorm:"type:uuid;index" json:"subscription_id"`
	Number         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"number"`
	Amount         float64   `gorm:"not null" json:"amount"`
	Currency       string    `gorm:"type:varchar(8);default:'USD'" json:"currency"`
	Status         string    `gorm:"type:varchar(32);default:'pending';index" json:"status"`
	DueDate        time.Time `gorm:"index;not null" json:"due_date"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
