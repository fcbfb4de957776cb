package service

import (
	"context"

	"study_space/internal/config"
	"study_space/internal/domain"
	"study_space/internal/repository"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/jwt"
	"study_space/pkg/logger"
)

// AuthService проверяет bearer-токен, выпущенный внешним сервисом
// аутентификации. Вызывается один раз на handshake соединения
type AuthService interface {
	VerifyToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) VerifyToken(ctx context.Context, tokenString string) (*domain.User, error) {
	if tokenString == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		if err == jwt.ErrTokenExpired {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	if !user.IsActive {
		return nil, apperrors.ErrUnauthorized
	}

	return user, nil
}
