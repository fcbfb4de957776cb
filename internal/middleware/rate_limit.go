package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"study_space/internal/config"
	"study_space/internal/service"
	"study_space/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	cfg              config.RateLimitConfig
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, cfg config.RateLimitConfig, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		cfg:              cfg,
		log:              log,
	}
}

// Limit считает аутентифицированные запросы по пользователю,
// остальные по адресу: NAT не должен складывать чужие запросы в один ключ
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if v, ok := c.Get("user_id"); ok {
			if userID, ok := v.(uuid.UUID); ok {
				key = "user:" + userID.String()
			}
		}

		allowed, remaining, err := m.rateLimitService.Allow(c.Request.Context(), key, m.cfg.Requests, m.cfg.Window)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err, "key", key)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
