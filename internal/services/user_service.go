package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"referral-api/internal/apperrors"
	"referral-api/internal/mailer"
	"referral-api/internal/models"
)

// EmailVerifier gates registration on email deliverability
type EmailVerifier interface {
	CheckEmail(ctx context.Context, email string) (bool, error)
}

// UserService handles registration and user-related business logic
type UserService struct {
	db       *gorm.DB
	verifier EmailVerifier
	codes    *CodeService
	mail     mailer.Sender
	logger   *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(db *gorm.DB, verifier EmailVerifier, codes *CodeService, mail mailer.Sender, logger *zap.Logger) *UserService {
	return &UserService{
		db:       db,
		verifier: verifier,
		codes:    codes,
		mail:     mail,
		logger:   logger,
	}
}

// Register creates a user, optionally resolving a referral code and
// recording the referer→referral edge in the same transaction. The email
// is checked against the verification service before anything is written.
func (s *UserService) Register(ctx context.Context, username, email, password, referralCode string) (*models.User, error) {
	deliverable, err := s.verifier.CheckEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !deliverable {
		return nil, apperrors.NewValidation("email", "this email is not deliverable")
	}

	var refererID uint
	if referralCode != "" {
		record, err := s.codes.ResolveForReferral(ctx, referralCode)
		if err != nil {
			return nil, err
		}
		refererID = record.UserID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	// User creation and edge creation are atomic: a duplicate edge rolls
	// back the user insert as well.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.NewValidation("username", "a user with this username or email already exists")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if refererID != 0 {
			refer := models.Refer{
				RefererID:  refererID,
				ReferralID: user.ID,
			}
			if err := tx.Create(&refer).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperrors.NewValidation("referral_code", "this referral is already recorded")
				}
				return fmt.Errorf("failed to create refer edge: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if refererID != 0 {
		s.logger.Info("user registered with referral",
			zap.Uint("user_id", user.ID),
			zap.Uint("referer_id", refererID))
	} else {
		s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// SendCodeEmail mails the requester their current referral code. Mail
// delivery failures are surfaced as upstream errors, never swallowed.
func (s *UserService) SendCodeEmail(ctx context.Context, userID uint) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	code, err := s.codes.ResolveOwnCodeString(ctx, userID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Your referral code: %s", code)
	if err := s.mail.Send(user.Email, "Your referral code", body); err != nil {
		return apperrors.NewUpstream("failed to send referral code email", err)
	}

	s.logger.Info("referral code emailed", zap.Uint("user_id", userID))
	return nil
}
