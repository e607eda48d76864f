package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Origin 跨域处理：编辑器前端跑在另一个端口上。
// 按需收紧 Allow-Origin；WebSocket 升级请求直接放行。
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
