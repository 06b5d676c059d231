package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/pkg/response"
)

// Health reports process liveness plus database reachability.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		dbStatus := "ok"

		if db == nil {
			dbStatus = "unavailable"
			status = "degraded"
		} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(requestContext(c)) != nil {
			dbStatus = "unreachable"
			status = "degraded"
		}

		response.Success(c, http.StatusOK, gin.H{
			"status":   status,
			"database": dbStatus,
		})
	}
}
