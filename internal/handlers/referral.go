package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-api/internal/auth"
	"referral-api/internal/services"
)

// ReferralHandler handles referral graph queries
type ReferralHandler struct {
	referralService *services.ReferralService
}

// NewReferralHandler creates a new ReferralHandler
func NewReferralHandler(referralService *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

// GetOwnReferrals returns the requester's referrals.
// GET /api/referrals
func (h *ReferralHandler) GetOwnReferrals(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	referrals, err := h.referralService.ListOwn(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"referrals": referrals,
		"count":     len(referrals),
	})
}

// GetByReferer returns the referrals of an arbitrary user.
// GET /api/referer/:user_id
func (h *ReferralHandler) GetByReferer(c *gin.Context) {
	refererID, err := parseID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	referrals, err := h.referralService.ListByReferer(c.Request.Context(), refererID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"referrals": referrals,
		"count":     len(referrals),
	})
}
