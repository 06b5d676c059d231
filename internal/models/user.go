package models

// User represents an account holder. Only the fields the notification
// engine needs are modelled here; profile data lives elsewhere.
type User struct {
	BaseModel

	Username string `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`
}
