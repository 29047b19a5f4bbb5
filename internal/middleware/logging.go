// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"chat-relay-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 用于在请求和响应之间传递请求 ID。
const RequestIDHeader = "X-Request-ID"

// RequestIDKey 是请求 ID 在 gin.Context 中的键。
const RequestIDKey = "requestId"

// RequestLogger 是一个 Gin 中间件，为每个请求分配请求 ID 并记录访问日志。
// 请求体和响应体都不缓存，流式响应和图片内容按原样透传。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		log.Infow("HTTP Request Log",
			"requestId", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBytes", c.Request.ContentLength,
			"responseBytes", c.Writer.Size(),
		)
	}
}
