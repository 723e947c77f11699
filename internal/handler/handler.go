package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/bot"
	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
	"github.com/yayaxhy/jinleeWeb/internal/service"
	"github.com/yayaxhy/jinleeWeb/pkg/response"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg             *config.Config
	discountService *service.DiscountService
	voucherService  *service.VoucherService
	paymentService  *service.PaymentService
	withdrawService *service.WithdrawService
	ledgerService   *service.LedgerService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, cfg *config.Config, botClient *bot.Client) *Handler {
	return &Handler{
		cfg:             cfg,
		discountService: service.NewDiscountService(db, cfg),
		voucherService:  service.NewVoucherService(db, cfg, botClient),
		paymentService:  service.NewPaymentService(db, cfg),
		withdrawService: service.NewWithdrawService(db, cfg),
		ledgerService:   service.NewLedgerService(db),
	}
}

// ============================================================
// 优惠核销
// ============================================================

// ApplyDiscountRequest 优惠核销请求
type ApplyDiscountRequest struct {
	Kind      string `json:"kind" binding:"required"` // coupon / lottery
	CouponID  string `json:"coupon_id"`
	LotteryID string `json:"lottery_id"`
}

// 拒绝原因到提示语
var discountRejectMessages = map[string]string{
	service.DiscountOrderNotEnded:    "订单还未结束",
	service.DiscountNoCoupon:         "没有可用的折扣券",
	service.DiscountNoLottery:        "没有可用的折扣类抽奖券",
	service.DiscountNoFee:            "订单不足计费时长，无费用可返",
	service.DiscountInsufficientData: "订单缺少计价信息，无法计算返利",
}

// ApplyDiscount 对一笔已结束订单核销折扣返利
// POST /api/orders/:orderId/discount
func (h *Handler) ApplyDiscount(c *gin.Context) {
	actor := CurrentActor(c)

	var req ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	kind := service.DiscountKind(req.Kind)
	if kind != service.DiscountKindCoupon && kind != service.DiscountKindLottery {
		response.ParamError(c, "kind 只能是 coupon 或 lottery")
		return
	}

	result, err := h.discountService.ApplyDiscountForOrder(c.Request.Context(), &service.ApplyDiscountRequest{
		OrderID:   c.Param("orderId"),
		UserID:    actor.DiscordID,
		Kind:      kind,
		CouponID:  req.CouponID,
		LotteryID: req.LotteryID,
	})
	if err != nil {
		response.ServerError(c)
		return
	}

	switch result.Status {
	case service.DiscountApplied:
		response.Success(c, gin.H{
			"status":     result.Status,
			"kind":       result.Kind,
			"amount":     result.Amount.StringFixed(2),
			"coupon_id":  result.CouponID,
			"lottery_id": result.LotteryID,
		})
	case service.DiscountOrderNotFound:
		response.NotFound(c, "订单不存在")
	case service.DiscountNotOrderHost:
		response.Forbidden(c, "只有订单老板可以使用优惠")
	case service.DiscountAlreadyUsed:
		response.Conflict(c, "该订单已使用过优惠")
	default:
		msg := discountRejectMessages[result.Status]
		if msg == "" {
			msg = result.Status
		}
		response.ParamError(c, msg)
	}
}

// ListDiscountable 查询可用优惠的订单
// GET /api/orders/discountable
func (h *Handler) ListDiscountable(c *gin.Context) {
	actor := CurrentActor(c)

	orders, err := h.discountService.ListDiscountable(c.Request.Context(), actor.DiscordID)
	if err != nil {
		response.ServerError(c)
		return
	}
	response.Success(c, gin.H{"orders": orders})
}

// ============================================================
// 抽奖券 / 特殊券核销
// ============================================================

// UseLotteryRequest 抽奖券核销请求
type UseLotteryRequest struct {
	LotteryID string `json:"lottery_id" binding:"required"`
	Mode      string `json:"mode" binding:"required"` // gift / selfuse
	Target    string `json:"target"`
}

// UseLottery 核销一张抽奖券
// POST /api/lottery/use
func (h *Handler) UseLottery(c *gin.Context) {
	actor := CurrentActor(c)

	var req UseLotteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	mode := service.LotteryUseMode(req.Mode)
	if mode != service.LotteryModeGift && mode != service.LotteryModeSelfUse {
		response.ParamError(c, "mode 只能是 gift 或 selfuse")
		return
	}

	err := h.voucherService.UseLottery(c.Request.Context(), &service.UseLotteryRequest{
		UserID:    actor.DiscordID,
		LotteryID: req.LotteryID,
		Mode:      mode,
		Target:    req.Target,
	})
	if err != nil {
		h.renderVoucherError(c, err)
		return
	}
	response.OK(c)
}

// UseVoucherRequest 特殊券核销请求
type UseVoucherRequest struct {
	PrizeName string `json:"prize_name" binding:"required"`
	Target    string `json:"target"`
	LotteryID string `json:"lottery_id"`
}

// UseVoucher 按奖品名核销一张特殊券
// POST /api/voucher/use
func (h *Handler) UseVoucher(c *gin.Context) {
	actor := CurrentActor(c)

	var req UseVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.voucherService.UseSpecialVoucher(c.Request.Context(), &service.UseSpecialVoucherRequest{
		UserID:    actor.DiscordID,
		PrizeName: req.PrizeName,
		Target:    req.Target,
		LotteryID: req.LotteryID,
	})
	if err != nil {
		h.renderVoucherError(c, err)
		return
	}
	response.OK(c)
}

func (h *Handler) renderVoucherError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVoucherNotFound),
		errors.Is(err, service.ErrTargetNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrVoucherConsumed):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrVoucherNotGift),
		errors.Is(err, service.ErrVoucherNotSelfUse),
		errors.Is(err, service.ErrVoucherUnavailable),
		errors.Is(err, service.ErrUnsupportedPrize):
		response.ParamError(c, err.Error())
	case errors.Is(err, bot.ErrUpstream):
		response.ParamError(c, err.Error())
	case errors.Is(err, bot.ErrGatewayUnavailable):
		response.BadGateway(c, "内部服务暂不可用，请稍后再试")
	default:
		response.ServerError(c)
	}
}

// ============================================================
// 提现
// ============================================================

// WithdrawApplyRequest 提现请求
type WithdrawApplyRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Method string `json:"method" binding:"required"`
}

// Withdraw 发起提现
// POST /api/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	actor := CurrentActor(c)

	var req WithdrawApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.withdrawService.Apply(c.Request.Context(), &service.WithdrawRequest{
		DiscordID: actor.DiscordID,
		Amount:    req.Amount,
		Method:    req.Method,
	})
	if err != nil {
		var cooldown *service.WithdrawCooldownError
		switch {
		case errors.Is(err, service.ErrWithdrawAmountInvalid):
			response.ParamError(c, fmt.Sprintf("提现金额必须是不低于 %d 的整数", h.cfg.Withdraw.MinAmount))
		case errors.As(err, &cooldown):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":            cooldown.Error(),
				"next_eligible_at": cooldown.NextEligibleAt,
			})
		case errors.Is(err, service.ErrWithdrawInsufficient):
			response.ParamError(c, err.Error())
		case errors.Is(err, repository.ErrMemberNotFound):
			response.NotFound(c, "账户不存在")
		default:
			response.ServerError(c)
		}
		return
	}
	response.Success(c, result)
}

// ============================================================
// 充值
// ============================================================

// CreateRechargeRequest 充值下单请求
type CreateRechargeRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Channel string `json:"channel" binding:"required"` // alipay / wxpay
}

// CreateRecharge 创建充值单并返回收银台链接
// POST /api/recharge/order
func (h *Handler) CreateRecharge(c *gin.Context) {
	actor := CurrentActor(c)

	var req CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 必须是数字")
		return
	}

	result, err := h.paymentService.CreateRechargeOrder(c.Request.Context(), &service.CreateRechargeRequest{
		DiscordID: actor.DiscordID,
		Amount:    amount,
		Channel:   req.Channel,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRechargeAmountTooSmall):
			response.ParamError(c, fmt.Sprintf("充值金额不能低于 %.2f", h.cfg.ZPay.MinAmount))
		case errors.Is(err, service.ErrRechargeChannelInvalid):
			response.ParamError(c, "不支持的支付渠道")
		default:
			response.ServerError(c)
		}
		return
	}
	response.Success(c, result)
}

// GetRecharge 查询自己的充值单
// GET /api/recharge/order/:orderId
func (h *Handler) GetRecharge(c *gin.Context) {
	actor := CurrentActor(c)

	order, err := h.paymentService.GetRechargeOrder(c.Request.Context(), actor.DiscordID, c.Param("orderId"))
	if err != nil {
		if errors.Is(err, repository.ErrRechargeOrderNotFound) {
			response.NotFound(c, "充值单不存在")
			return
		}
		response.ServerError(c)
		return
	}
	response.Success(c, gin.H{
		"out_trade_no": order.OutTradeNo,
		"amount":       order.Amount.StringFixed(2),
		"channel":      order.Channel,
		"status":       order.Status,
		"paid_at":      order.PaidAt,
		"created_at":   order.CreatedAt,
	})
}

// ============================================================
// 管理接口
// ============================================================

// AdminListTransactions 查询任意账户的流水，管理员专用
// GET /api/admin/transactions?discord_id=xxx&page=1&page_size=20
func (h *Handler) AdminListTransactions(c *gin.Context) {
	discordID := c.Query("discord_id")
	if discordID == "" {
		response.ParamError(c, "discord_id 不能为空")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	txns, total, err := h.ledgerService.ListTransactions(c.Request.Context(), discordID, page, pageSize)
	if err != nil {
		response.ServerError(c)
		return
	}
	response.Success(c, gin.H{
		"transactions": txns,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// AdminReconcile 按流水合计对账单个账户
// GET /api/admin/reconcile/:discordId
func (h *Handler) AdminReconcile(c *gin.Context) {
	result, err := h.ledgerService.Reconcile(c.Request.Context(), c.Param("discordId"))
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			response.NotFound(c, "账户不存在")
			return
		}
		response.ServerError(c)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 支付网关回调
// ============================================================

// ZPayNotify 网关异步通知入口
// POST|GET /api/payment/zpay/notify
//
// 应答体是网关约定的裸字符串，不走统一 JSON 格式
func (h *Handler) ZPayNotify(c *gin.Context) {
	params := collectNotifyParams(c)
	rawPayload, _ := json.Marshal(params)

	reply := h.paymentService.HandleGatewayNotification(c.Request.Context(), params, string(rawPayload))
	status := http.StatusOK
	if reply == service.NotifyReplyFail {
		// 失败应答同时给 400，网关据此重试
		status = http.StatusBadRequest
	}
	c.String(status, reply)
}

// collectNotifyParams 合并 query 与表单参数；JSON 体按扁平对象解析
func collectNotifyParams(c *gin.Context) map[string]string {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if c.Request.Method == http.MethodPost {
		if c.ContentType() == "application/json" {
			var body map[string]interface{}
			if err := c.ShouldBindJSON(&body); err == nil {
				for key, value := range body {
					params[key] = fmt.Sprintf("%v", value)
				}
			}
		} else if err := c.Request.ParseForm(); err == nil {
			for key, values := range c.Request.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	}
	return params
}
