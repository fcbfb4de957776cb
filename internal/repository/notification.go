package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"study_space/internal/domain"
	"study_space/pkg/logger"
)

const (
	// TTL для офлайн-уведомлений - 7 дней
	NotificationTTL = 7 * 24 * time.Hour

	// Префикс ключей Redis
	NotificationsKeyPrefix = "notifications:user:%s"
)

// NotificationRepository — граница с внешним хранилищем уведомлений.
// Запись fire-and-forget: ошибки логируются вызывающим, не ретраятся
type NotificationRepository interface {
	Create(ctx context.Context, intent *domain.NotificationIntent) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NotificationIntent, error)
}

type notificationRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewNotificationRepository(rdb *redis.Client, log logger.Logger) NotificationRepository {
	return &notificationRepository{rdb: rdb, log: log}
}

func (r *notificationRepository) getUserKey(userID uuid.UUID) string {
	return fmt.Sprintf(NotificationsKeyPrefix, userID.String())
}

func (r *notificationRepository) Create(ctx context.Context, intent *domain.NotificationIntent) error {
	key := r.getUserKey(intent.TargetUserID)

	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Timestamp в миллисекундах как score для сортировки по времени
	score := float64(intent.CreatedAt.UnixMilli())

	err = r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  score,
		Member: intentJSON,
	}).Err()
	if err != nil {
		r.log.Error("Failed to save notification to Redis", "error", err, "user_id", intent.TargetUserID)
		return fmt.Errorf("failed to save notification: %w", err)
	}

	if err := r.rdb.Expire(ctx, key, NotificationTTL).Err(); err != nil {
		r.log.Warn("Failed to set TTL on notifications key", "error", err)
	}

	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NotificationIntent, error) {
	key := r.getUserKey(userID)

	intentsJSON, err := r.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return []*domain.NotificationIntent{}, nil
		}
		r.log.Error("Failed to get notifications from Redis", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	intents := make([]*domain.NotificationIntent, 0, len(intentsJSON))
	for _, raw := range intentsJSON {
		var intent domain.NotificationIntent
		if err := json.Unmarshal([]byte(raw), &intent); err != nil {
			r.log.Warn("Failed to unmarshal notification", "error", err)
			continue
		}
		intents = append(intents, &intent)
	}

	return intents, nil
}
