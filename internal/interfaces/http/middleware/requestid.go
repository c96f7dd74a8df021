// Package middleware 提供 HTTP 中间件
package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hybrid-ranking-api/pkg/logger"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// 上游传入的 ID 会写进日志和缓存指标，只接受安全字符
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID 沿用合法的上游请求 ID，否则生成新的
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID.MatchString(requestID) {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// UserContext 把路径或查询参数中的 user_id 注入日志上下文
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if userID == "" {
			userID = c.Query("user_id")
		}
		if userID != "" {
			c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.UserIDKey, userID))
		}
		c.Next()
	}
}
