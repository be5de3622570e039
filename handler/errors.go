package handler

import (
	"errors"
	"net/http"

	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
)

// respondError maps a service error onto a status and a short client message.
// Anything unclassified is logged and reported as a 500 with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	var validationErr *service.ValidationError
	var renderErr *service.RenderError

	switch {
	case errors.As(err, &validationErr):
		middleware.AbortWithDetails(c, http.StatusBadRequest, validationErr.Message, validationErr.Fields)
	case errors.Is(err, service.ErrPermitNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, "Permit not found")
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrSessionMissing),
		errors.Is(err, service.ErrSessionInvalid),
		errors.Is(err, service.ErrSessionExpired):
		middleware.AbortWithError(c, http.StatusUnauthorized, middleware.SessionErrorMessage(err))
	case errors.As(err, &renderErr):
		logger.Error(c.Request.Context(), "certificate generation failed", "error", err)
		middleware.AbortWithError(c, http.StatusInternalServerError, "Failed to generate PDF")
	default:
		logger.Error(c.Request.Context(), fallback, "error", err)
		middleware.AbortWithError(c, http.StatusInternalServerError, fallback)
	}
	_ = c.Error(err)
}
