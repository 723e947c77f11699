package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/bot"
	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/session"
)

// SetupRouter 配置路由
// 网关回调不走会话鉴权，身份由签名保证
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, botClient *bot.Client) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, cfg, botClient)
	store := session.NewStore(rdb)

	// 网关回调，GET/POST 都要收
	r.GET("/api/payment/zpay/notify", h.ZPayNotify)
	r.POST("/api/payment/zpay/notify", h.ZPayNotify)

	// 登录态接口
	api := r.Group("/api", SessionMiddleware(store, cfg))
	{
		orders := api.Group("/orders")
		{
			orders.GET("/discountable", h.ListDiscountable)
			orders.POST("/:orderId/discount", h.ApplyDiscount)
		}

		api.POST("/lottery/use", h.UseLottery)
		api.POST("/voucher/use", h.UseVoucher)

		api.POST("/withdraw", h.Withdraw)

		recharge := api.Group("/recharge")
		{
			recharge.POST("/order", h.CreateRecharge)
			recharge.GET("/order/:orderId", h.GetRecharge)
		}

		admin := api.Group("/admin", RequireAdmin(cfg))
		{
			admin.GET("/transactions", h.AdminListTransactions)
			admin.GET("/reconcile/:discordId", h.AdminReconcile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
