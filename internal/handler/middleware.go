package handler

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/session"
	"github.com/yayaxhy/jinleeWeb/pkg/response"
)

const actorContextKey = "actor"

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"error": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// SessionMiddleware 会话鉴权
// 从 cookie 取会话 ID，去 Redis 换登录身份；封禁名单在身份解析后拦截
func SessionMiddleware(store *session.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(session.CookieName)
		if err != nil {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		actor, err := store.Get(c.Request.Context(), sessionID)
		if err != nil {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		if cfg.IsBlocked(actor.DiscordID) {
			response.Forbidden(c, "账号已被限制使用")
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// RequireAdmin 管理接口准入，仅放行白名单内的 Discord ID
func RequireAdmin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		if actor == nil || !cfg.IsAdmin(actor.DiscordID) {
			response.Forbidden(c, "无管理权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentActor 取当前登录身份，仅在 SessionMiddleware 之后的处理器内有效
func CurrentActor(c *gin.Context) *session.Actor {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return nil
	}
	actor, _ := value.(*session.Actor)
	return actor
}
