package models

// PushSubscription is a registered browser push endpoint for a user.
// Deactivation is logical: rows are kept for audit history and a
// re-registration of the same endpoint reactivates in place.
type PushSubscription struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;uniqueIndex:idx_push_user_endpoint,priority:1" json:"user_id"`
	Endpoint string `gorm:"type:varchar(500);not null;uniqueIndex:idx_push_user_endpoint,priority:2" json:"endpoint"`

	// Web Push credential material supplied by the browser.
	P256dh string `gorm:"column:p256dh;type:text;not null" json:"-"`
	Auth   string `gorm:"type:text;not null" json:"-"`

	UserAgent string `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	IsActive  bool   `gorm:"default:true;index" json:"is_active"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
