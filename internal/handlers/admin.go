package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/notify"
	"github.com/subwatch/subwatch/internal/services"
	"github.com/subwatch/subwatch/pkg/errors"
	"github.com/subwatch/subwatch/pkg/response"
)

// AdminHandler exposes the broadcast and stats endpoints for staff.
type AdminHandler struct {
	delivery      *services.DeliveryService
	notifications *services.NotificationService
}

// NewAdminHandler constructs the admin notification handler.
func NewAdminHandler(db *gorm.DB, delivery *services.DeliveryService) (*AdminHandler, error) {
	notifications, err := services.NewNotificationService(db)
	if err != nil {
		return nil, err
	}
	return &AdminHandler{delivery: delivery, notifications: notifications}, nil
}

// Broadcast sends one notification to a list of recipients via the batched
// delivery pipeline. The response carries the aggregate counts plus the
// per-user detail list.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	var payload struct {
		UserIDs []string       `json:"user_ids" validate:"required,min=1"`
		Title   string         `json:"title" validate:"required"`
		Message string         `json:"message" validate:"required"`
		Type    string         `json:"type"`
		Data    map[string]any `json:"data"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	eventType := payload.Type
	if eventType == "" {
		eventType = notify.TypeBroadcast
	}
	if !notify.IsKnownType(eventType) {
		response.Error(c, errors.ErrUnknownNotificationType)
		return
	}

	result := h.delivery.SendBatch(requestContext(c), payload.UserIDs, eventType, payload.Title, payload.Message, payload.Data)
	response.Success(c, http.StatusOK, result)
}

// Stats summarises stored notifications for the admin dashboard.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.notifications.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
