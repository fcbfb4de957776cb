package handler

import (
	"study_space/internal/config"
	"study_space/internal/gateway"
	"study_space/internal/repository"
	"study_space/internal/service"
	"study_space/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Chat         *ChatHandler
	Notification *NotificationHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(
	services *service.Services,
	repos *repository.Repositories,
	hub *gateway.Hub,
	calls *gateway.CallCoordinator,
	cfg *config.Config,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Chat:         NewChatHandler(services.Chat, log),
		Notification: NewNotificationHandler(repos.Notification, log),
		WebSocket:    NewWebSocketHandler(services.Auth, services.Chat, hub, calls, repos.Group, cfg.WebSocket, log),
	}
}
