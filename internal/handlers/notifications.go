package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/services"
	"github.com/epetcare/notifier/internal/sweep"
	appErrors "github.com/epetcare/notifier/pkg/errors"
	"github.com/epetcare/notifier/pkg/response"
)

// opportunisticSweepLimit bounds the background per-owner sweep triggered by
// a list request, so a dashboard load never kicks off a full pass.
const opportunisticSweepLimit = 10

// NotificationHandler exposes the owner-facing notification endpoints.
type NotificationHandler struct {
	service *services.NotificationService
	sweeper *sweep.Sweeper
}

// NewNotificationHandler constructs a notification handler. sweeper may be
// nil; listing then skips the opportunistic sweep.
func NewNotificationHandler(service *services.NotificationService, sweeper *sweep.Sweeper) (*NotificationHandler, error) {
	if service == nil {
		return nil, appErrors.New("INVALID_DEPENDENCY", "notification service must be provided", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service, sweeper: sweeper}, nil
}

// List returns notifications for the supplied owner. Opening the list also
// kicks off a small background sweep for that owner so trigger-captured rows
// get mailed without waiting for the next scheduled pass.
func (h *NotificationHandler) List(c *gin.Context) {
	ownerID := strings.TrimSpace(c.Query("owner_id"))
	if ownerID == "" {
		response.Error(c, appErrors.NewBadRequest("owner_id is required"))
		return
	}

	input := services.ListNotificationsInput{
		OwnerID: ownerID,
		Limit:   parseIntQuery(c, "limit", 25),
		Offset:  parseIntQuery(c, "offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("is_read")); raw != "" {
		isRead := raw == "true" || raw == "1"
		input.IsRead = &isRead
	}

	items, err := h.service.ListForOwner(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.sweeper != nil {
		go func() {
			_, _ = h.sweeper.RunForOwner(context.Background(), ownerID, opportunisticSweepLimit)
		}()
	}

	unread, err := h.service.UnreadCount(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": items,
		"unread_count":  unread,
	})
}

// MarkRead sets the read flag for one notification.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	ownerID := strings.TrimSpace(c.Query("owner_id"))
	if ownerID == "" {
		response.Error(c, appErrors.NewBadRequest("owner_id is required"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	notification, err := h.service.MarkRead(c.Request.Context(), ownerID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, notification)
}

// MarkAllRead marks all notifications for the owner as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	ownerID := strings.TrimSpace(c.Query("owner_id"))
	if ownerID == "" {
		response.Error(c, appErrors.NewBadRequest("owner_id is required"))
		return
	}

	if err := h.service.MarkAllRead(c.Request.Context(), ownerID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}
