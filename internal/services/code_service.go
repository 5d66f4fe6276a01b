package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-api/internal/apperrors"
	"referral-api/internal/cache"
	"referral-api/internal/models"
)

// referralSnapshotTTL bounds how long a registration-time lookup may
// reuse a cached is_expired snapshot.
const referralSnapshotTTL = 24 * time.Hour

// CodeService manages the referral code lifecycle. The store is the
// system of record; the cache mirrors code state with TTLs matching the
// code lifetime and is consulted first on reads.
type CodeService struct {
	db     *gorm.DB
	cache  *cache.Client
	logger *zap.Logger
}

// NewCodeService creates a new CodeService
func NewCodeService(db *gorm.DB, cacheClient *cache.Client, logger *zap.Logger) *CodeService {
	return &CodeService{
		db:     db,
		cache:  cacheClient,
		logger: logger,
	}
}

// Create creates a referral code for a user. A user may hold only one
// code at a time: the cache and store pre-checks are advisory, the
// unique index on codes.user_id is the authoritative guard against
// concurrent creates. An empty codeStr gets a generated code.
func (s *CodeService) Create(ctx context.Context, userID uint, codeStr string, liveDays int) (*models.Code, error) {
	// Advisory pre-checks: cached user→code pointer, then the store.
	if cached, _ := s.cache.GetUserCode(ctx, userID); cached != "" {
		return nil, apperrors.NewValidation("code", "you can only have one code at a time")
	}

	var existing models.Code
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, apperrors.NewValidation("code", "you can only have one code at a time")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing code: %w", err)
	}

	if codeStr == "" {
		codeStr, err = generateRandomCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
	}

	now := time.Now()
	code := models.Code{
		UserID:    userID,
		Code:      codeStr,
		LiveDays:  liveDays,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(liveDays) * 24 * time.Hour),
	}

	if err := s.db.WithContext(ctx).Create(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, s.classifyDuplicate(ctx, codeStr)
		}
		return nil, fmt.Errorf("failed to create code: %w", err)
	}

	s.writeThrough(ctx, &code, time.Duration(liveDays)*24*time.Hour, now)

	s.logger.Info("referral code created",
		zap.Uint("user_id", userID),
		zap.String("code", code.Code),
		zap.Time("expires_at", code.ExpiresAt))

	return &code, nil
}

// classifyDuplicate decides which uniqueness constraint a duplicate-key
// error came from, for a field-level message.
func (s *CodeService) classifyDuplicate(ctx context.Context, codeStr string) error {
	var clash models.Code
	if err := s.db.WithContext(ctx).Where("code = ?", codeStr).First(&clash).Error; err == nil {
		return apperrors.NewValidation("code", "this code is already in use")
	}
	return apperrors.NewValidation("code", "you can only have one code at a time")
}

// Update changes a code's live days and recomputes expires_at from the
// original creation time. Only the owner or a superuser may update.
func (s *CodeService) Update(ctx context.Context, codeID, requesterID uint, isSuperuser bool, newLiveDays int) (*models.Code, error) {
	code, err := s.getForMutation(ctx, codeID, requesterID, isSuperuser)
	if err != nil {
		return nil, err
	}

	code.LiveDays = newLiveDays
	code.ExpiresAt = code.CreatedAt.Add(time.Duration(newLiveDays) * 24 * time.Hour)

	if err := s.db.WithContext(ctx).Model(code).Updates(map[string]interface{}{
		"live_days":  code.LiveDays,
		"expires_at": code.ExpiresAt,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update code: %w", err)
	}

	// Cache TTL mirrors the remaining lifetime; a zero TTL clears the
	// entries rather than keeping them forever.
	now := time.Now()
	ttl := code.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	s.writeThrough(ctx, code, ttl, now)

	s.logger.Info("referral code updated",
		zap.Uint("code_id", code.ID),
		zap.Int("live_days", newLiveDays),
		zap.Time("expires_at", code.ExpiresAt))

	return code, nil
}

// Delete removes a code and both of its cache entries. Only the owner
// or a superuser may delete.
func (s *CodeService) Delete(ctx context.Context, codeID, requesterID uint, isSuperuser bool) error {
	code, err := s.getForMutation(ctx, codeID, requesterID, isSuperuser)
	if err != nil {
		return err
	}

	if err := s.cache.DeleteCode(ctx, code.Code); err != nil {
		s.logger.Warn("failed to delete code cache entry", zap.String("code", code.Code), zap.Error(err))
	}
	if err := s.cache.DeleteUserCode(ctx, code.UserID); err != nil {
		s.logger.Warn("failed to delete usercode cache entry", zap.Uint("user_id", code.UserID), zap.Error(err))
	}

	if err := s.db.WithContext(ctx).Delete(code).Error; err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}

	s.logger.Info("referral code deleted", zap.Uint("code_id", code.ID), zap.Uint("user_id", code.UserID))
	return nil
}

// GetOwn returns the requester's code, or NotFound if none exists
func (s *CodeService) GetOwn(ctx context.Context, userID uint) (*models.Code, error) {
	var code models.Code
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("you do not have a code yet")
		}
		return nil, err
	}
	return &code, nil
}

// ResolveForReferral resolves a candidate referral code at registration
// time. A cache hit reuses the stored is_expired snapshot; a miss reads
// the store, snapshots is_expired once, and populates the cache for up
// to a day. Missing and expired codes both fail validation.
func (s *CodeService) ResolveForReferral(ctx context.Context, codeStr string) (*cache.CodeRecord, error) {
	record, _ := s.cache.GetCode(ctx, codeStr)

	if record == nil {
		var code models.Code
		if err := s.db.WithContext(ctx).Where("code = ?", codeStr).First(&code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NewValidation("referral_code", "this referral code is invalid")
			}
			return nil, fmt.Errorf("failed to look up referral code: %w", err)
		}

		record = snapshot(&code, time.Now())
		if err := s.cache.SetCode(ctx, record, referralSnapshotTTL); err != nil {
			s.logger.Warn("failed to cache referral code", zap.String("code", codeStr), zap.Error(err))
		}
	}

	if record.IsExpired {
		return nil, apperrors.NewValidation("referral_code", "this referral code has expired")
	}

	return record, nil
}

// ResolveOwnCodeString returns the requester's code string, preferring
// the cached user→code pointer and repopulating it from the store on a
// miss. Used by the code-by-email resend.
func (s *CodeService) ResolveOwnCodeString(ctx context.Context, userID uint) (string, error) {
	if cached, _ := s.cache.GetUserCode(ctx, userID); cached != "" {
		return cached, nil
	}

	var code models.Code
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NewNotFound("you do not have a referral code")
		}
		return "", err
	}

	ttl := time.Until(code.ExpiresAt)
	if err := s.cache.SetUserCode(ctx, userID, code.Code, ttl); err != nil {
		s.logger.Warn("failed to cache usercode pointer", zap.Uint("user_id", userID), zap.Error(err))
	}

	return code.Code, nil
}

// getForMutation loads a code and enforces the owner-or-superuser capability
func (s *CodeService) getForMutation(ctx context.Context, codeID, requesterID uint, isSuperuser bool) (*models.Code, error) {
	var code models.Code
	if err := s.db.WithContext(ctx).First(&code, codeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("code not found")
		}
		return nil, err
	}

	if code.UserID != requesterID && !isSuperuser {
		return nil, apperrors.ErrForbidden
	}

	return &code, nil
}

// writeThrough mirrors a code into both cache entries with the given TTL
func (s *CodeService) writeThrough(ctx context.Context, code *models.Code, ttl time.Duration, at time.Time) {
	record := snapshot(code, at)
	if err := s.cache.SetCode(ctx, record, ttl); err != nil {
		s.logger.Warn("failed to cache code record", zap.String("code", code.Code), zap.Error(err))
	}
	if err := s.cache.SetUserCode(ctx, code.UserID, code.Code, ttl); err != nil {
		s.logger.Warn("failed to cache usercode pointer", zap.Uint("user_id", code.UserID), zap.Error(err))
	}
}

// snapshot builds the typed cache record, evaluating is_expired once at t
func snapshot(code *models.Code, t time.Time) *cache.CodeRecord {
	return &cache.CodeRecord{
		ID:        code.ID,
		Code:      code.Code,
		UserID:    code.UserID,
		CreatedAt: code.CreatedAt,
		LiveDays:  code.LiveDays,
		ExpiresAt: code.ExpiresAt,
		IsExpired: code.IsExpiredAt(t),
	}
}

// generateRandomCode generates a random 8-character code
func generateRandomCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:8], nil
}
