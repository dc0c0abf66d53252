package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 冷却中间件 ====================

// Cooldown 按包裹 + 操作维度限流
//
// 使用示例:
//
//	shipments.POST("/:id/refresh",
//	    middleware.Cooldown(limiter, middleware.ActionRefresh, 0),
//	    shipmentCtl.Refresh,
//	)
//
// interval 为 0 时使用默认值；请求失败（状态码 >= 400）时清除冷却
func Cooldown(limiter *CooldownLimiter, action Action, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(action)
	}

	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			c.Next()
			return
		}

		key := ShipmentKey(id, action)
		result := limiter.Check(key, interval)
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        "RATE_LIMITED",
				"message":     formatRetryMessage(result.RetryAfter),
				"retry_after": retryAfter,
				"action":      action,
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			limiter.Reset(key)
		}
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))

	if seconds < 60 {
		return fmt.Sprintf("操作冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60
	if remainingSeconds == 0 {
		return fmt.Sprintf("操作冷却中，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("操作冷却中，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
