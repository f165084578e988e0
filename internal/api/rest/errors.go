package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/glyphora/glyph-indexer/internal/logger"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	errCodeBadRequest    ErrorCode = "bad_request"
	errCodeNotFound      ErrorCode = "not_found"
	errCodeInternalError ErrorCode = "internal_error"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error: errorDetail{Code: errCodeBadRequest, Message: message},
	})
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, errorResponse{
		Error: errorDetail{Code: errCodeNotFound, Message: message},
	})
}

// respondInternalError sends a 500 response and logs the underlying error
func respondInternalError(c *gin.Context, err error, message string) {
	logger.Error(err, zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, errorResponse{
		Error: errorDetail{Code: errCodeInternalError, Message: message},
	})
}
