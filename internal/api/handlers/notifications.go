package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "kalium.io/kalium/internal/pkg/errors"
)

// UserIDHeader identifies the caller for inbox routes. Authentication is
// handled in front of this service.
const UserIDHeader = "X-User-ID"

const maxNotifications = 100

func (s *Server) inboxUser(c *gin.Context) (string, bool) {
	if s.inbox == nil {
		fail(c, apperrors.NotFound("INBOX_DISABLED", "the notification inbox is not enabled"))
		return "", false
	}
	userID := c.GetHeader(UserIDHeader)
	if userID == "" {
		fail(c, apperrors.New("UNAUTHORIZED", UserIDHeader+" header is required", http.StatusUnauthorized))
		return "", false
	}
	return userID, true
}

// ListNotifications handles GET /notifications?limit=.
func (s *Server) ListNotifications(c *gin.Context) {
	userID, found := s.inboxUser(c)
	if !found {
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		fail(c, err)
		return
	}
	if limit <= 0 || limit > maxNotifications {
		limit = maxNotifications
	}
	items, err := s.inbox.List(c.Request.Context(), userID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": items})
}

// MarkNotificationRead handles POST /notifications/{id}/read.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	userID, found := s.inboxUser(c)
	if !found {
		return
	}
	updated, err := s.inbox.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !updated {
		fail(c, apperrors.NotFound("NOTIFICATION_NOT_FOUND", "notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
