package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/middleware"
)

// toAPIError maps a service error onto a status code and response body.
func toAPIError(err error, correlationID string) (int, *domain.APIError) {
	var (
		validationErr *domain.ValidationError
		inferenceErr  *domain.InferenceError
		notFoundErr   *domain.NotFoundError
		rangeErr      *domain.OutOfRangeError
	)

	switch {
	case errors.As(err, &validationErr):
		apiErr := domain.NewAPIError(domain.ErrValidation, validationErr.Message, validationErr.Message, "", correlationID)
		apiErr.Field = validationErr.Field
		return http.StatusBadRequest, apiErr

	case errors.As(err, &inferenceErr):
		return http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrInference,
			"Internal server error during diagnosis",
			"The prediction model did not return a usable result",
			inferenceErr.Error(),
			correlationID,
		)

	case errors.As(err, &notFoundErr):
		summary := "Patient not found"
		if notFoundErr.Resource != "patient ID" {
			summary = "Diagnosis not found"
		}
		return http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, summary, notFoundErr.Error(), "", correlationID)

	case errors.As(err, &rangeErr):
		return http.StatusNotFound, domain.NewAPIError(domain.ErrOutOfRangeCode, "Diagnosis not found", rangeErr.Error(), "", correlationID)

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrInternalServer, "Internal server error", "The request timed out", "", correlationID)
	}

	return http.StatusInternalServerError, domain.NewAPIError(
		domain.ErrInternalServer, "Internal server error", "An unexpected error occurred", "", correlationID)
}

// respondError writes the mapped error and logs server-side failures.
func (s *Server) respondError(c *gin.Context, err error) {
	correlationID := c.GetString(middleware.CorrelationIDKey)
	status, apiErr := toAPIError(err, correlationID)

	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"path":           c.Request.URL.Path,
			"error":          err.Error(),
		}).Error("Request failed")
	}

	c.AbortWithStatusJSON(status, apiErr)
}

// badRequest reports a malformed request that never reached the service.
func (s *Server) badRequest(c *gin.Context, field, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.respondError(c, domain.NewValidationError(field, msg, nil))
}
