package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 充值单状态
const (
	RechargeOrderStatusPending = "PENDING"
	RechargeOrderStatusPaid    = "PAID"
	RechargeOrderStatusClosed  = "CLOSED"
)

// 支付渠道
const (
	ZPayChannelAlipay = "alipay"
	ZPayChannelWxpay  = "wxpay"
)

// SupportedZPayChannels 允许的支付渠道
var SupportedZPayChannels = []string{ZPayChannelAlipay, ZPayChannelWxpay}

func IsSupportedZPayChannel(channel string) bool {
	for _, c := range SupportedZPayChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// ZPayRechargeOrder 充值单表
// 发起充值时创建为 PENDING，网关异步回调后恰好一次转为 PAID。
// PAID 之后再收到同一 out_trade_no 的回调直接按成功应答，绝不二次入账
type ZPayRechargeOrder struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OutTradeNo     string          `gorm:"type:varchar(40);uniqueIndex;not null" json:"out_trade_no"` // 商户侧交易号
	DiscordUserID  string          `gorm:"type:varchar(32);index;not null" json:"discord_user_id"`    // 充值账户
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`                 // 下单时锁定的金额，回调只允许与它相等
	Channel        string          `gorm:"type:varchar(16);not null" json:"channel"`                  // alipay / wxpay
	Status         string          `gorm:"type:varchar(16);index;not null;default:PENDING" json:"status"`
	GatewayTradeNo string          `gorm:"type:varchar(64)" json:"gateway_trade_no"` // 网关侧交易号
	NotifyPayload  string          `gorm:"type:text" json:"-"`                       // 原始回调参数，留作对账
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ZPayRechargeOrder) TableName() string {
	return "zpay_recharge_order"
}
