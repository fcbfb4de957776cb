package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"study_space/internal/domain"
	"study_space/internal/repository"
	"study_space/pkg/logger"
)

// PresenceSource — живой онлайн-состав комнаты; реализуется шлюзом
type PresenceSource interface {
	OnlineUserIDs(groupID uuid.UUID) []uuid.UUID
}

// NotificationService вычисляет офлайн-участников и передаёт интенты
// во внешнее хранилище уведомлений. Отказы логируются, не ретраятся
// и не блокируют живую рассылку
type NotificationService interface {
	NotifyMessage(ctx context.Context, message *domain.Message)
	NotifyCallStarted(ctx context.Context, groupID, starterID uuid.UUID, starterName, callType string)
}

type notificationService struct {
	groupRepo repository.GroupRepository
	notifRepo repository.NotificationRepository
	presence  PresenceSource
	log       logger.Logger
}

func NewNotificationService(
	groupRepo repository.GroupRepository,
	notifRepo repository.NotificationRepository,
	presence PresenceSource,
	log logger.Logger,
) NotificationService {
	return &notificationService{
		groupRepo: groupRepo,
		notifRepo: notifRepo,
		presence:  presence,
		log:       log,
	}
}

func (s *notificationService) NotifyMessage(ctx context.Context, message *domain.Message) {
	preview := domain.TruncatePreview(message.Content)
	if message.Type != domain.MessageTypeText && message.FileName != nil {
		preview = *message.FileName
	}

	s.notifyOffline(ctx, message.GroupID, message.SenderID, message.ID, message.SenderName, preview)
}

func (s *notificationService) NotifyCallStarted(ctx context.Context, groupID, starterID uuid.UUID, starterName, callType string) {
	preview := fmt.Sprintf("%s started a %s call", starterName, callType)
	s.notifyOffline(ctx, groupID, starterID, uuid.Nil, starterName, preview)
}

// notifyOffline: offline = участники группы минус онлайн-состав комнаты.
// Один интент на каждого офлайн-участника, независимо от числа соединений
func (s *notificationService) notifyOffline(ctx context.Context, groupID, actorID, messageID uuid.UUID, actorName, preview string) {
	members, err := s.groupRepo.ListMemberIDs(ctx, groupID)
	if err != nil {
		s.log.Error("Failed to list members for offline fallback", "error", err, "group_id", groupID)
		return
	}

	online := make(map[uuid.UUID]bool)
	for _, userID := range s.presence.OnlineUserIDs(groupID) {
		online[userID] = true
	}

	now := time.Now()
	for _, userID := range members {
		if userID == actorID || online[userID] {
			continue
		}

		intent := &domain.NotificationIntent{
			ID:           uuid.New(),
			TargetUserID: userID,
			GroupID:      groupID,
			MessageID:    messageID,
			SenderName:   actorName,
			Preview:      preview,
			CreatedAt:    now,
		}

		if err := s.notifRepo.Create(ctx, intent); err != nil {
			s.log.Error("Failed to create notification intent", "error", err, "user_id", userID, "group_id", groupID)
		}
	}
}
