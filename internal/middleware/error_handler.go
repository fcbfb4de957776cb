package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

// ErrorHandler переводит ошибки, накопленные обработчиками, в ответ.
// Известные доменные ошибки отдаются как есть, неизвестные — без текста:
// содержимое сырой ошибки хранилища не предназначено клиенту
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *apperrors.APIError
		if errors.As(err, &apiErr) {
			c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		status := apperrors.HTTPStatusFromError(err)
		if status == http.StatusInternalServerError {
			log.Error("Unhandled request error", "error", err, "path", c.Request.URL.Path)
			c.JSON(status, gin.H{"error": "internal server error"})
			return
		}

		c.JSON(status, gin.H{"error": err.Error()})
	}
}
