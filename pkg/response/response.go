package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误响应统一为 {"error": "..."}，状态码对外即语义：
// 400 参数/业务校验失败，403 非资源归属者，404 实体不存在，
// 409 并发竞争失败/重复核销，429 冷却期内，502 下游服务不可用

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func OK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "未登录")
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, message)
}

func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "internal_error")
}
