package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-api/internal/auth"
	"referral-api/internal/services"
)

// EmailHandler handles the code-by-email resend
type EmailHandler struct {
	userService *services.UserService
}

// NewEmailHandler creates a new EmailHandler
func NewEmailHandler(userService *services.UserService) *EmailHandler {
	return &EmailHandler{userService: userService}
}

// SendCode mails the requester their referral code.
// GET /api/send-code-email
func (h *EmailHandler) SendCode(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.userService.SendCodeEmail(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"detail": "Your referral code has been sent to your email."})
}
