package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-api/internal/config"
	"referral-api/internal/services"
)

// UserHandler handles user registration
type UserHandler struct {
	userService *services.UserService
	limits      config.LimitsConfig
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService, limits config.LimitsConfig) *UserHandler {
	return &UserHandler{
		userService: userService,
		limits:      limits,
	}
}

// Register creates a new user, optionally via a referral code.
// POST /api/users
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username     string `json:"username" binding:"required"`
		Email        string `json:"email" binding:"required,email"`
		Password     string `json:"password" binding:"required,password"`
		ReferralCode string `json:"referral_code"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if msg := h.checkLengths(req.Username, req.Email, req.ReferralCode); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.ReferralCode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// checkLengths enforces the configured maximum field lengths
func (h *UserHandler) checkLengths(username, email, referralCode string) string {
	if len(username) > h.limits.UsernameMaxLen {
		return fmt.Sprintf("username must be at most %d characters", h.limits.UsernameMaxLen)
	}
	if len(email) > h.limits.EmailMaxLen {
		return fmt.Sprintf("email must be at most %d characters", h.limits.EmailMaxLen)
	}
	if len(referralCode) > h.limits.CodeMaxLen {
		return fmt.Sprintf("referral_code must be at most %d characters", h.limits.CodeMaxLen)
	}
	return ""
}
