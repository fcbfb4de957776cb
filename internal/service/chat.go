package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"study_space/internal/domain"
	"study_space/internal/repository"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

const maxMessageLength = 4000

// RoomBroadcaster — живая рассылка в комнату группы; реализуется шлюзом
type RoomBroadcaster interface {
	BroadcastMessageNew(message *domain.Message)
	BroadcastMessageEdited(message *domain.Message)
	BroadcastMessageDeleted(groupID, messageID uuid.UUID)
}

type SendMessageInput struct {
	Content   string
	Type      string
	ReplyToID *uuid.UUID
	File      *domain.FileMeta
}

type HistoryPage struct {
	Messages   []*domain.Message `json:"messages"`
	NextCursor *uuid.UUID        `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

type ChatService interface {
	SendMessage(ctx context.Context, groupID, senderID uuid.UUID, input SendMessageInput) (*domain.Message, error)
	EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error
	LoadHistory(ctx context.Context, groupID, userID uuid.UUID, cursor *uuid.UUID, limit int) (*HistoryPage, error)
	SearchMessages(ctx context.Context, groupID, userID uuid.UUID, query string, limit int) ([]*domain.Message, error)
}

type chatService struct {
	messageRepo   repository.MessageRepository
	groupRepo     repository.GroupRepository
	notifications NotificationService
	broadcaster   RoomBroadcaster
	log           logger.Logger

	// Порядок рассылки должен совпадать с порядком коммитов: отправки
	// одной группы сериализуются, разные группы не мешают друг другу
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewChatService(
	messageRepo repository.MessageRepository,
	groupRepo repository.GroupRepository,
	notifications NotificationService,
	broadcaster RoomBroadcaster,
	log logger.Logger,
) ChatService {
	return &chatService{
		messageRepo:   messageRepo,
		groupRepo:     groupRepo,
		notifications: notifications,
		broadcaster:   broadcaster,
		log:           log,
		locks:         make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *chatService) groupLock(groupID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[groupID] = l
	}
	return l
}

func (s *chatService) requireMember(ctx context.Context, userID, groupID uuid.UUID) error {
	ok, err := s.groupRepo.IsMember(ctx, userID, groupID)
	if err != nil {
		return apperrors.ErrStoreUnavailable
	}
	if !ok {
		return apperrors.ErrNotAMember
	}
	return nil
}

func (s *chatService) SendMessage(ctx context.Context, groupID, senderID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.File == nil {
		return nil, apperrors.ErrBadRequest
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	messageType := input.Type
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	if !domain.IsValidMessageType(messageType) {
		return nil, apperrors.ErrBadRequest
	}

	if err := s.requireMember(ctx, senderID, groupID); err != nil {
		return nil, err
	}

	if input.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			return nil, apperrors.ErrMessageNotFound
		}
		if parent.GroupID != groupID {
			return nil, apperrors.ErrBadRequest
		}
	}

	message := &domain.Message{
		ID:        uuid.New(),
		GroupID:   groupID,
		SenderID:  senderID,
		Content:   content,
		Type:      messageType,
		ReplyToID: input.ReplyToID,
		CreatedAt: time.Now(),
	}
	if input.File != nil {
		message.FileURL = &input.File.URL
		message.FileName = &input.File.Name
		message.FileSize = &input.File.Size
	}

	lock := s.groupLock(groupID)
	lock.Lock()

	// Рассылка только после подтверждённой записи: неперсистированное
	// сообщение не должно уйти в комнату даже частично
	if err := s.messageRepo.Create(ctx, message); err != nil {
		lock.Unlock()
		return nil, apperrors.ErrStoreUnavailable
	}

	hydrated, err := s.messageRepo.GetByID(ctx, message.ID)
	if err != nil {
		s.log.Warn("Failed to hydrate message after create", "error", err, "message_id", message.ID)
		hydrated = message
	}

	s.broadcaster.BroadcastMessageNew(hydrated)
	lock.Unlock()

	// Ровно один раз на send; edit/delete фолбэк не запускают
	s.notifications.NotifyMessage(context.WithoutCancel(ctx), hydrated)

	return hydrated, nil
}

func (s *chatService) EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxMessageLength {
		return nil, apperrors.ErrBadRequest
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		// Сырые ошибки хранилища не уходят на провод
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			return nil, err
		}
		return nil, apperrors.ErrStoreUnavailable
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}
	if message.SenderID != userID {
		return nil, apperrors.ErrNotAuthorized
	}

	// Комната берётся из сохранённого сообщения: автор мог выйти
	// из комнаты и вернуться, право на правку от этого не меняется
	if err := s.requireMember(ctx, userID, message.GroupID); err != nil {
		return nil, err
	}

	lock := s.groupLock(message.GroupID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messageRepo.UpdateContent(ctx, messageID, content); err != nil {
		if err == apperrors.ErrMessageNotFound {
			return nil, err
		}
		return nil, apperrors.ErrStoreUnavailable
	}

	updated, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable
	}

	s.broadcaster.BroadcastMessageEdited(updated)
	return updated, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			return err
		}
		return apperrors.ErrStoreUnavailable
	}
	if message.IsDeleted {
		return apperrors.ErrMessageNotFound
	}
	if message.SenderID != userID {
		return apperrors.ErrNotAuthorized
	}

	if err := s.requireMember(ctx, userID, message.GroupID); err != nil {
		return err
	}

	lock := s.groupLock(message.GroupID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		if err == apperrors.ErrMessageNotFound {
			return err
		}
		return apperrors.ErrStoreUnavailable
	}

	// В событии только идентификатор, без плейсхолдера
	s.broadcaster.BroadcastMessageDeleted(message.GroupID, messageID)
	return nil
}

func (s *chatService) LoadHistory(ctx context.Context, groupID, userID uuid.UUID, cursor *uuid.UUID, limit int) (*HistoryPage, error) {
	if err := s.requireMember(ctx, userID, groupID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.messageRepo.ListBefore(ctx, groupID, cursor, limit)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable
	}

	page := &HistoryPage{HasMore: len(messages) == limit}
	if len(messages) > 0 {
		oldest := messages[len(messages)-1].ID
		page.NextCursor = &oldest
	}

	// Транспорт отдаёт от новых к старым, клиенту удобнее наоборот
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	page.Messages = messages

	return page, nil
}

func (s *chatService) SearchMessages(ctx context.Context, groupID, userID uuid.UUID, query string, limit int) ([]*domain.Message, error) {
	if err := s.requireMember(ctx, userID, groupID); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrBadRequest
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.messageRepo.Search(ctx, groupID, query, limit)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable
	}

	return messages, nil
}
