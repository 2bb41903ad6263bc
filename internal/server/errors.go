package server

import (
	"errors"
	"net/http"

	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ValidationError reports a malformed client request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// statusFor maps an error to its HTTP status; anything but a validation
// failure is a 500.
func statusFor(err error) int {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithError writes err as {error: message} with its mapped status.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	log := s.logger.Warn
	if status >= http.StatusInternalServerError {
		log = s.logger.Error
	}
	log("Request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Int("status", status),
		zap.Error(err))

	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: err.Error()})
}
