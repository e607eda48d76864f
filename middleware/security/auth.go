package security

import (
	"net/http"
	"strings"

	sec "CProject/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 下游 handler 统一用这俩 key 读取
const (
	CtxUserIDKey   = "authUserId"   // string
	CtxUserNameKey = "authUserName" // string
)

type Options struct {
	// Enabled=false 时整条链放行（demo 模式）。
	// 原型里 /api/collaboration 没有鉴权，任何知道 sceneId 的人都能
	// 看到场景活动；这里默认拦上。
	Enabled bool

	Secret []byte
	Alg    string // 默认 HS256

	EnableAuthorizationBearer bool // 默认 true，兼容 Authorization: Bearer xxx
	HeaderToken               string
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		Enabled:                   true,
		Secret:                    secret,
		EnableAuthorizationBearer: true,
		HeaderToken:               "authorization",
	}
}

// Middleware 校验 Bearer JWT，把 userID/userName 写入 gin context。
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		panic("security: nil options")
	}
	secOpts := sec.Options{Secret: opts.Secret, Alg: opts.Alg}

	return func(c *gin.Context) {
		if !opts.Enabled {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := sec.Verify(secOpts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUserNameKey, claims.UserName)
		c.Next()
	}
}
