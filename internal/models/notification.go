package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification audiences.
const (
	AudienceUser  = "user"
	AudienceAdmin = "admin"
)

// Notification push statuses. Status reflects the push attempt outcome and
// is independent of read state; a record transitions pending -> sent|failed
// at most once.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Notification is the durable record of a user- or admin-facing event.
// UniqKey carries the sole idempotency guarantee: the unique index rejects
// a second record for the same logical event.
type Notification struct {
	BaseModel

	Audience string  `gorm:"type:varchar(16);not null;index" json:"audience"`
	UserID   *string `gorm:"type:uuid;index" json:"user_id,omitempty"`

	Type    string `gorm:"type:varchar(64);not null;index" json:"type"`
	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Message string `gorm:"type:text" json:"message"`

	UniqKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`

	Status string     `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	SentAt *time.Time `json:"sent_at,omitempty"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	Data datatypes.JSON `json:"data,omitempty"`
}
