package handlers

import (
	"artisan-delivery/internal/domain"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// writeServiceError maps caller mistakes to 400 and everything else to a
// logged 500.
func writeServiceError(c *gin.Context, log *zap.Logger, err error) {
	if isValidationError(err) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	_ = c.Error(err)
	log.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("req_id", c.GetString("req_id")),
		zap.Error(err),
	)
	writeError(c, http.StatusInternalServerError, "internal server error")
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidCoordinate) || errors.Is(err, domain.ErrInvalidCartItem)
}
