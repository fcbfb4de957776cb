package service

import (
	"study_space/internal/config"
	"study_space/internal/repository"
	"study_space/pkg/logger"
)

type Services struct {
	Auth         AuthService
	Chat         ChatService
	Notification NotificationService
	RateLimit    RateLimitService
}

// NewServices собирает сервисный слой. Broadcaster и presence — это хаб
// шлюза, он создаётся раньше сервисов
func NewServices(
	repos *repository.Repositories,
	broadcaster RoomBroadcaster,
	presence PresenceSource,
	cfg *config.Config,
	log logger.Logger,
) *Services {
	notifications := NewNotificationService(repos.Group, repos.Notification, presence, log)

	return &Services{
		Auth:         NewAuthService(repos.User, cfg.JWT, log),
		Chat:         NewChatService(repos.Message, repos.Group, notifications, broadcaster, log),
		Notification: notifications,
		RateLimit:    NewRateLimitService(repos.RateLimit, log),
	}
}
