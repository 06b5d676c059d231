package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/models"
)

// AutoMigrate applies the schema for all persistent models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Invoice{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.NotificationPreference{},
	)
}
