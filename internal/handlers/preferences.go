package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/middleware"
	"github.com/subwatch/subwatch/internal/services"
	"github.com/subwatch/subwatch/pkg/errors"
	"github.com/subwatch/subwatch/pkg/response"
)

// PreferenceHandler exposes per-user push opt-out flags.
type PreferenceHandler struct {
	service *services.PreferenceService
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(db *gorm.DB) (*PreferenceHandler, error) {
	service, err := services.NewPreferenceService(db)
	if err != nil {
		return nil, err
	}
	return &PreferenceHandler{service: service}, nil
}

// Get returns the caller's full preference map with defaults applied.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	prefs, err := h.service.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, prefs)
}

// Set stores an explicit preference for one notification type.
func (h *PreferenceHandler) Set(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		PreferenceType string `json:"preference_type" validate:"required"`
		Enabled        *bool  `json:"enabled" validate:"required"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.Set(requestContext(c), userID, payload.PreferenceType, *payload.Enabled); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"preference_type": payload.PreferenceType,
		"enabled":         *payload.Enabled,
	})
}
