package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"referral-api/internal/apperrors"
)

// respondError maps service error kinds onto HTTP statuses: validation
// failures are 400 with field detail, missing resources 404, failed
// external calls 502, permission failures 403. Anything else is a 500.
func respondError(c *gin.Context, err error) {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
		return
	}

	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, gin.H{"detail": notFoundErr.Message})
		return
	}

	var upstreamErr *apperrors.UpstreamError
	if errors.As(err, &upstreamErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": upstreamErr.Message})
		return
	}

	if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
