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

// PushHandler manages browser push endpoint registration.
type PushHandler struct {
	service        *services.PushSubscriptionService
	vapidPublicKey string
}

// NewPushHandler constructs a push subscription handler. The VAPID public
// key may be empty when push is not configured; the public-key endpoint
// then reports push as unavailable.
func NewPushHandler(db *gorm.DB, vapidPublicKey string) (*PushHandler, error) {
	service, err := services.NewPushSubscriptionService(db)
	if err != nil {
		return nil, err
	}
	return &PushHandler{service: service, vapidPublicKey: vapidPublicKey}, nil
}

// PublicKey returns the VAPID public key browsers need to subscribe.
func (h *PushHandler) PublicKey(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"public_key": h.vapidPublicKey,
		"enabled":    h.vapidPublicKey != "",
	})
}

// Subscribe registers (or refreshes) a browser push endpoint.
func (h *PushHandler) Subscribe(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Endpoint string `json:"endpoint" validate:"required,url"`
		Keys     struct {
			P256dh string `json:"p256dh" validate:"required"`
			Auth   string `json:"auth" validate:"required"`
		} `json:"keys"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	sub, err := h.service.Upsert(requestContext(c), services.UpsertSubscriptionInput{
		UserID:    userID,
		Endpoint:  payload.Endpoint,
		P256dh:    payload.Keys.P256dh,
		Auth:      payload.Keys.Auth,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, sub)
}

// Unsubscribe deactivates one of the caller's registered endpoints.
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Endpoint string `json:"endpoint" validate:"required"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.DeactivateForUser(requestContext(c), userID, payload.Endpoint); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unsubscribed": true})
}
