package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "blackjack-backend/internal/errors"
)

// respondError renders err as {"error", "code"} with the status of its kind.
func respondError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeBadCredentials {
		status = http.StatusUnauthorized
	}

	if status >= http.StatusInternalServerError {
		log.Errorw("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"user_id", c.GetString("user_id"),
			"error", err,
		)
	}

	c.JSON(status, gin.H{
		"error": apperrors.PublicMessage(err),
		"code":  code,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"code":    apperrors.CodeInvalidPayload,
		"details": err.Error(),
	})
}
