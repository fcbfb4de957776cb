package service

import (
	"context"
	"time"

	"study_space/internal/repository"
	"study_space/pkg/logger"
)

// RateLimitService решает, пускать ли обращение по ключу.
// remaining — сколько обращений осталось в текущем окне
type RateLimitService interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	count, err := s.rateLimitRepo.Hit(ctx, key, window)
	if err != nil {
		return false, 0, err
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(limit), remaining, nil
}
