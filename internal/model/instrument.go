package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/pkg/idgen"
)

// ============================================================================
// 可兑换凭证：优惠券 + 抽奖记录
// ============================================================================
//
// 两张表共用同一套生命周期：未使用 -> 已使用（恰好一次）或 已过期。
// 状态翻转必须通过条件 UPDATE（WHERE status = 未使用）完成，
// RowsAffected 不为 1 就视为并发竞争失败，绝不允许重复核销。

const (
	CouponStatusActive  = "ACTIVE"
	CouponStatusUsed    = "USED"
	CouponStatusExpired = "EXPIRED"

	CouponTypeDiscount90 = "DISCOUNT_90"
)

const (
	LotteryStatusUnused  = "UNUSED"
	LotteryStatusUsed    = "USED"
	LotteryStatusExpired = "EXPIRED"
)

// 奖品大类
const (
	LotteryPrizeTypeCoupon  = "COUPON"  // 折扣返利类
	LotteryPrizeTypeGift    = "GIFT"    // 礼物代金券，赠送后由机器人发货
	LotteryPrizeTypeSelfUse = "SELFUSE" // 自用类
	LotteryPrizeTypeSpecial = "SPECIAL" // 特殊券（降抽成/双倍流水等）
)

// DiscountRateCap 折扣类奖品的返利比例与封顶
type DiscountRateCap struct {
	Rate decimal.Decimal
	Cap  decimal.Decimal
}

// DiscountPrizeConfig 折扣类奖品配置表，key 为奖品名
var DiscountPrizeConfig = map[string]DiscountRateCap{
	"7折券":   {Rate: decimal.NewFromFloat(0.3), Cap: decimal.NewFromInt(150)},
	"8折券":   {Rate: decimal.NewFromFloat(0.2), Cap: decimal.NewFromInt(100)},
	"特殊9折券": {Rate: decimal.NewFromFloat(0.1), Cap: decimal.NewFromInt(50)},
}

// DiscountPrizeNames 折扣类奖品名列表，查询时做 IN 过滤用
func DiscountPrizeNames() []string {
	names := make([]string, 0, len(DiscountPrizeConfig))
	for name := range DiscountPrizeConfig {
		names = append(names, name)
	}
	return names
}

// Coupon 优惠券表
type Coupon struct {
	ID             string           `gorm:"type:varchar(40);primaryKey" json:"id"`
	DiscordID      string           `gorm:"type:varchar(32);index;not null" json:"discord_id"`   // 归属用户
	Type           string           `gorm:"type:varchar(20);not null" json:"type"`               // 券种
	Status         string           `gorm:"type:varchar(10);index;not null" json:"status"`       // ACTIVE / USED / EXPIRED
	DiscountAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_amount,omitempty"` // 核销时实际抵扣金额
	OrderID        *string          `gorm:"type:varchar(40);index" json:"order_id,omitempty"`    // 核销关联的订单
	IssuedAt       time.Time        `gorm:"not null" json:"issued_at"`
	ExpiresAt      time.Time        `gorm:"index;not null" json:"expires_at"`
	ConsumedAt     *time.Time       `json:"consumed_at,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

func (c *Coupon) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = idgen.GenerateCouponID()
	}
	return nil
}

// LotteryPrize 奖品目录
type LotteryPrize struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"` // 奖品名，行为表按名字分类
	Type      string    `gorm:"type:varchar(20);not null" json:"type"`             // 奖品大类
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LotteryPrize) TableName() string {
	return "lottery_prize"
}

// LotteryDraw 抽奖记录，即抽中后持有的待核销凭证
type LotteryDraw struct {
	ID         string       `gorm:"type:varchar(40);primaryKey" json:"id"`
	UserID     string       `gorm:"type:varchar(32);index;not null" json:"user_id"`  // 归属用户
	PrizeID    int64        `gorm:"index;not null" json:"prize_id"`                  // 奖品
	Prize      LotteryPrize `gorm:"foreignKey:PrizeID" json:"prize"`                 //
	Status     string       `gorm:"type:varchar(10);index;not null" json:"status"`   // UNUSED / USED / EXPIRED
	RequestID  string       `gorm:"type:varchar(40);index" json:"request_id"`        // 核销关联（订单ID / SELFUSE / GIFT:xxx）
	ExpiresAt  time.Time    `gorm:"index;not null" json:"expires_at"`
	ConsumeAt  *time.Time   `json:"consume_at,omitempty"`
	CreatedAt  time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LotteryDraw) TableName() string {
	return "lottery_draw"
}

func (d *LotteryDraw) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = idgen.GenerateDrawID()
	}
	return nil
}
