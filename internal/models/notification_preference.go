package models

// NotificationPreference is a per-user push opt-out flag for one
// notification type. An absent row means the type is enabled.
type NotificationPreference struct {
	BaseModel

	UserID         string `gorm:"type:uuid;not null;uniqueIndex:idx_pref_user_type,priority:1" json:"user_id"`
	PreferenceType string `gorm:"type:varchar(64);not null;uniqueIndex:idx_pref_user_type,priority:2" json:"preference_type"`
	Enabled        bool   `gorm:"default:true" json:"enabled"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
