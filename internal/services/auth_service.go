package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"referral-api/internal/auth"
	"referral-api/internal/models"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike
var ErrInvalidCredentials = errors.New("invalid username or password")

// AuthService handles authentication business logic
type AuthService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(db *gorm.DB, logger *zap.Logger) *AuthService {
	return &AuthService{db: db, logger: logger}
}

// Login verifies credentials and issues a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Username, user.IsSuperuser)
	if err != nil {
		return "", err
	}

	s.logger.Info("user logged in", zap.Uint("user_id", user.ID))
	return token, nil
}

// Refresh reissues a token from valid claims
func (s *AuthService) Refresh(ctx context.Context, claims *auth.Claims) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	return auth.GenerateToken(user.ID, user.Username, user.IsSuperuser)
}
