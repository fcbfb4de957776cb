package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"study_space/pkg/logger"
)

// Префикс ключей шлюза, чтобы не пересекаться со счётчиками других сервисов
const rateLimitKeyPrefix = "ratelimit:gateway:%s"

// RateLimitRepository считает обращения в фиксированном окне.
// Hit атомарен: INCR и выставление TTL на первом обращении
type RateLimitRepository interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewRateLimitRepository(rdb *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{rdb: rdb, log: log}
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := fmt.Sprintf(rateLimitKeyPrefix, key)

	count, err := r.rdb.Incr(ctx, fullKey).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit counter", "error", err, "key", key)
		return 0, err
	}

	// Окно начинается с первого обращения
	if count == 1 {
		if err := r.rdb.Expire(ctx, fullKey, window).Err(); err != nil {
			r.log.Warn("Failed to set rate limit window", "error", err, "key", key)
		}
	}

	return count, nil
}
