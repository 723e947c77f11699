package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
	"github.com/yayaxhy/jinleeWeb/pkg/idgen"
	"github.com/yayaxhy/jinleeWeb/pkg/zpay"
)

const (
	// 网关异步通知的应答约定：原样字符串，不是 JSON
	NotifyReplySuccess = "success"
	NotifyReplyFail    = "fail"
)

var (
	ErrRechargeAmountTooSmall = errors.New("充值金额低于最低限额")
	ErrRechargeChannelInvalid = errors.New("不支持的支付渠道")
)

// 网关认定支付完成的状态字
var paidTradeStatus = map[string]bool{
	"TRADE_SUCCESS": true,
	"SUCCESS":       true,
	"PAID":          true,
}

// PaymentService 充值下单与网关回调入账
type PaymentService struct {
	db           *gorm.DB
	cfg          *config.Config
	rechargeRepo *repository.RechargeOrderRepository
	memberRepo   *repository.MemberRepository
	outboxRepo   *repository.OutboxRepository
	ledger       *LedgerService
}

func NewPaymentService(db *gorm.DB, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:           db,
		cfg:          cfg,
		rechargeRepo: repository.NewRechargeOrderRepository(db),
		memberRepo:   repository.NewMemberRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		ledger:       NewLedgerService(db),
	}
}

// CreateRechargeRequest 充值下单请求
type CreateRechargeRequest struct {
	DiscordID string
	Amount    decimal.Decimal
	Channel   string
}

// CreateRechargeResult 下单结果，PayURL 为带签名的网关跳转地址
type CreateRechargeResult struct {
	OutTradeNo string          `json:"out_trade_no"`
	PayURL     string          `json:"pay_url"`
	Amount     decimal.Decimal `json:"amount"`
	Channel    string          `json:"channel"`
}

// CreateRechargeOrder 创建 PENDING 充值单并生成网关收银台链接
func (s *PaymentService) CreateRechargeOrder(ctx context.Context, req *CreateRechargeRequest) (*CreateRechargeResult, error) {
	amount := req.Amount.Round(2)
	minAmount := decimal.NewFromFloat(s.cfg.ZPay.MinAmount)
	if amount.LessThanOrEqual(decimal.Zero) || amount.LessThan(minAmount) {
		return nil, ErrRechargeAmountTooSmall
	}
	if !model.IsSupportedZPayChannel(req.Channel) {
		return nil, ErrRechargeChannelInvalid
	}

	// 会员记录随下单惰性建档，回调入账时必然已存在
	if _, err := s.memberRepo.GetOrCreate(ctx, req.DiscordID); err != nil {
		return nil, err
	}

	order := &model.ZPayRechargeOrder{
		OutTradeNo:    idgen.GenerateOutTradeNo(req.DiscordID),
		DiscordUserID: req.DiscordID,
		Amount:        amount,
		Channel:       req.Channel,
		Status:        model.RechargeOrderStatusPending,
	}
	if err := s.rechargeRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	gateway := s.cfg.ZPay.Gateway
	if gateway == "" {
		gateway = zpay.DefaultGateway
	}
	params := map[string]string{
		"pid":          s.cfg.ZPay.MerchantID,
		"type":         req.Channel,
		"out_trade_no": order.OutTradeNo,
		"notify_url":   s.cfg.ZPay.NotifyURL,
		"return_url":   s.cfg.ZPay.ReturnURL,
		"name":         s.cfg.ZPay.SiteName + "-充值",
		"money":        amount.StringFixed(2),
		"sign_type":    "MD5",
	}
	payURL := zpay.BuildPayURL(params, s.cfg.ZPay.Secret, gateway)

	log.Printf("充值下单: discordID=%s, outTradeNo=%s, amount=%s, channel=%s",
		req.DiscordID, order.OutTradeNo, amount.StringFixed(2), req.Channel)

	return &CreateRechargeResult{
		OutTradeNo: order.OutTradeNo,
		PayURL:     payURL,
		Amount:     amount,
		Channel:    req.Channel,
	}, nil
}

// GetRechargeOrder 查询充值单，只允许查自己的
func (s *PaymentService) GetRechargeOrder(ctx context.Context, discordID, outTradeNo string) (*model.ZPayRechargeOrder, error) {
	order, err := s.rechargeRepo.GetByOutTradeNo(ctx, nil, outTradeNo)
	if err != nil {
		return nil, err
	}
	if order.DiscordUserID != discordID {
		return nil, repository.ErrRechargeOrderNotFound
	}
	return order, nil
}

// HandleGatewayNotification 处理网关异步通知，返回应答体
//
// 幂等序列：验签 → 状态字 → 查单 → 已 PAID 直接成功 → 金额两位精度
// 相等比对 → 单事务内 CAS 置 PAID + 入账 + 镜像同步。重放到达时
// CAS 置 PAID 失败即视为已处理，不会二次加钱
func (s *PaymentService) HandleGatewayNotification(ctx context.Context, params map[string]string, rawPayload string) string {
	providedSign := params["sign"]
	if !zpay.VerifySignature(params, s.cfg.ZPay.Secret, providedSign) {
		log.Printf("充值回调验签失败: payload=%s", rawPayload)
		return NotifyReplyFail
	}

	// 状态字兼容 trade_status / status 两个键，统一大写后比对
	tradeStatus := strings.ToUpper(params["trade_status"])
	if tradeStatus == "" {
		tradeStatus = strings.ToUpper(params["status"])
	}
	if !paidTradeStatus[tradeStatus] {
		// 非支付完成状态一律拒绝，让网关按失败重试
		log.Printf("充值回调状态无效: trade_status=%s, out_trade_no=%s",
			tradeStatus, params["out_trade_no"])
		return NotifyReplyFail
	}

	outTradeNo := params["out_trade_no"]
	order, err := s.rechargeRepo.GetByOutTradeNo(ctx, nil, outTradeNo)
	if err != nil {
		log.Printf("充值回调查单失败: outTradeNo=%s, err=%v", outTradeNo, err)
		return NotifyReplyFail
	}

	if order.Status == model.RechargeOrderStatusPaid {
		return NotifyReplySuccess
	}
	if order.Status == model.RechargeOrderStatusClosed {
		// 关单后才到账，留痕走人工对账
		log.Printf("充值回调命中已关闭订单: outTradeNo=%s, payload=%s", outTradeNo, rawPayload)
		return NotifyReplyFail
	}

	notifyAmount, err := decimal.NewFromString(params["money"])
	if err != nil || !notifyAmount.Round(2).Equal(order.Amount) {
		log.Printf("充值回调金额不符: outTradeNo=%s, 下单=%s, 回调=%s, payload=%s",
			outTradeNo, order.Amount.StringFixed(2), params["money"], rawPayload)
		return NotifyReplyFail
	}

	counterparty := params["trade_no"]
	if counterparty == "" {
		counterparty = params["buyer"]
	}
	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.rechargeRepo.MarkPaid(ctx, tx, outTradeNo, params["trade_no"], rawPayload, now); err != nil {
			return err
		}

		txn, err := s.ledger.ApplyBalanceDelta(ctx, tx, &DeltaRequest{
			DiscordID: order.DiscordUserID,
			Delta: repository.BalanceDelta{
				Total:    order.Amount,
				Recharge: order.Amount,
			},
			Kind:           model.TxnKindRecharge,
			CounterpartyID: counterparty,
		})
		if err != nil {
			return err
		}

		// 陪玩档案的余额镜像列跟随总余额
		if err := s.memberRepo.MirrorPeiwanBalance(ctx, tx, order.DiscordUserID, txn.BalanceAfter); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":        model.OutboxEventRechargePaid,
			"out_trade_no": outTradeNo,
			"discord_id":   order.DiscordUserID,
			"amount":       order.Amount.StringFixed(2),
			"trade_no":     params["trade_no"],
			"paid_at":      now.Format(time.RFC3339),
		})
		return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: outTradeNo,
			Topic:      s.cfg.Kafka.Topic.LedgerEvent,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrRechargeOrderState) {
			// 并发回调输掉 CAS，等价于已处理
			return NotifyReplySuccess
		}
		log.Printf("充值入账失败: outTradeNo=%s, err=%v", outTradeNo, err)
		return NotifyReplyFail
	}

	log.Printf("充值入账成功: outTradeNo=%s, discordID=%s, amount=%s",
		outTradeNo, order.DiscordUserID, order.Amount.StringFixed(2))
	return NotifyReplySuccess
}
