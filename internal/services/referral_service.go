package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"referral-api/internal/apperrors"
	"referral-api/internal/models"
)

// ReferralEntry is the referral side of an edge as returned by list
// endpoints: who joined, and when.
type ReferralEntry struct {
	Username   string `json:"username"`
	DateJoined string `json:"date_joined"`
}

// ReferralService answers referral graph queries
type ReferralService struct {
	db *gorm.DB
}

// NewReferralService creates a new ReferralService
func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{db: db}
}

// ListOwn returns the referrals of the requesting user in edge creation order
func (s *ReferralService) ListOwn(ctx context.Context, userID uint) ([]ReferralEntry, error) {
	return s.listByReferer(ctx, userID)
}

// ListByReferer returns the referrals of an arbitrary user, failing with
// NotFound when no such user exists
func (s *ReferralService) ListByReferer(ctx context.Context, refererID uint) ([]ReferralEntry, error) {
	var referer models.User
	if err := s.db.WithContext(ctx).First(&referer, refererID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("referer not found")
		}
		return nil, err
	}

	return s.listByReferer(ctx, refererID)
}

func (s *ReferralService) listByReferer(ctx context.Context, refererID uint) ([]ReferralEntry, error) {
	var refers []models.Refer
	if err := s.db.WithContext(ctx).
		Where("referer_id = ?", refererID).
		Preload("Referral").
		Order("id ASC").
		Find(&refers).Error; err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	entries := make([]ReferralEntry, 0, len(refers))
	for _, refer := range refers {
		if refer.Referral == nil {
			continue
		}
		entries = append(entries, ReferralEntry{
			Username:   refer.Referral.Username,
			DateJoined: refer.Referral.CreatedAt.Format(time.RFC3339),
		})
	}

	return entries, nil
}
