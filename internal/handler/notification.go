package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"study_space/internal/repository"
	"study_space/pkg/logger"
)

// NotificationHandler отдаёт накопленные офлайн-уведомления;
// пишет их только шлюз, внешний сервис доставки читает отсюда же
type NotificationHandler struct {
	notifRepo repository.NotificationRepository
	log       logger.Logger
}

func NewNotificationHandler(notifRepo repository.NotificationRepository, log logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifRepo: notifRepo,
		log:       log,
	}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	intents, err := h.notifRepo.ListForUser(c.Request.Context(), userID.(uuid.UUID), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": intents})
}
