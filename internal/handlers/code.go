package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"referral-api/internal/auth"
	"referral-api/internal/config"
	"referral-api/internal/models"
	"referral-api/internal/services"
)

// CodeHandler handles referral code CRUD
type CodeHandler struct {
	codeService *services.CodeService
	limits      config.LimitsConfig
}

// NewCodeHandler creates a new CodeHandler
func NewCodeHandler(codeService *services.CodeService, limits config.LimitsConfig) *CodeHandler {
	return &CodeHandler{
		codeService: codeService,
		limits:      limits,
	}
}

// GetOwn returns the requester's code.
// GET /api/code
func (h *CodeHandler) GetOwn(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	code, err := h.codeService.GetOwn(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, codeResponse(code))
}

// Create creates a code for the requester. An omitted code string gets a
// generated one.
// POST /api/code
func (h *CodeHandler) Create(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Code     string `json:"code"`
		LiveDays int    `json:"live_days" binding:"required,gt=0"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Code) > h.limits.CodeMaxLen {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("code must be at most %d characters", h.limits.CodeMaxLen),
		})
		return
	}

	code, err := h.codeService.Create(c.Request.Context(), userID, req.Code, req.LiveDays)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, codeResponse(code))
}

// Update changes a code's live days.
// PATCH /api/code/:id
func (h *CodeHandler) Update(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	codeID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code id"})
		return
	}

	var req struct {
		LiveDays int `json:"live_days" binding:"required,gt=0"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.codeService.Update(c.Request.Context(), codeID, userID, auth.IsSuperuser(c), req.LiveDays)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, codeResponse(code))
}

// Delete removes a code and its cache entries.
// DELETE /api/code/:id
func (h *CodeHandler) Delete(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	codeID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code id"})
		return
	}

	if err := h.codeService.Delete(c.Request.Context(), codeID, userID, auth.IsSuperuser(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// codeResponse serializes a code including the derived is_expired flag
func codeResponse(code *models.Code) gin.H {
	return gin.H{
		"id":         code.ID,
		"code":       code.Code,
		"user_id":    code.UserID,
		"created_at": code.CreatedAt,
		"live_days":  code.LiveDays,
		"expires_at": code.ExpiresAt,
		"is_expired": code.IsExpired(),
	}
}

// parseID parses a positive integer path parameter
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
