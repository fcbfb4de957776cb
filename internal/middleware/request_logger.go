package middleware

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		// Латентность WebSocket-запроса — это время жизни соединения,
		// логировать её как обычный запрос бессмысленно
		if strings.HasPrefix(path, "/ws") {
			return
		}

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		fmt.Fprintf(gin.DefaultWriter.(io.Writer), "[%s] %s %s %d %s\n",
			clientIP,
			method,
			path,
			statusCode,
			latency,
		)
	}
}
