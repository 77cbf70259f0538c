package handlers

import (
	"net/http"

	"polls-backend/cache"
	"polls-backend/logger"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware 按客户端IP限流，超出时返回429。
// 限流器出错时放行请求并记录日志
func RateLimitMiddleware(limiter *cache.UserRateLimiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.AllowUser(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.FromContext(c).WithError(err).Warn("限流检查失败")
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "请求频率过高，请稍后再试",
			})
			return
		}

		c.Next()
	}
}
