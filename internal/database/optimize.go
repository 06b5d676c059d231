package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Optimize asks the storage engine to reclaim space on the notification
// tables after a retention purge. Best effort: callers log failures and
// carry on.
func Optimize(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("optimize: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch DriverName(db) {
	case "sqlite":
		return db.WithContext(ctx).Exec("VACUUM").Error
	case "postgres":
		for _, table := range maintenanceTables {
			if err := db.WithContext(ctx).Exec("VACUUM ANALYZE " + table).Error; err != nil {
				return err
			}
		}
		return nil
	case "mysql":
		for _, table := range maintenanceTables {
			if err := db.WithContext(ctx).Exec("OPTIMIZE TABLE " + table).Error; err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("optimize: unsupported driver %q", DriverName(db))
	}
}

var maintenanceTables = []string{"notifications", "push_subscriptions"}
