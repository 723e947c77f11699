package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Buff 类型
const (
	BuffTypeCommission = "COMMISSION" // 抽成降低
	BuffTypeFlow       = "FLOW"       // 双倍流水
	BuffTypeSpend      = "SPEND"      // 双倍消费
)

// Buff 增益表
// 同一用户同一类型最多一条生效记录（owner+type 唯一）。
// 续期语义：新到期时间 = max(now, 原到期时间) + 30 天；
// FLOW/SPEND 类在续期之外还会累加剩余额度，而不是覆盖
type Buff struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DiscordUserID string          `gorm:"type:varchar(32);uniqueIndex:uniq_buff_owner_type;not null" json:"discord_user_id"`
	Type          string          `gorm:"type:varchar(16);uniqueIndex:uniq_buff_owner_type;not null" json:"type"`
	Magnitude     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"magnitude"` // 幅度（如抽成降 1 个百分点）
	Remaining     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"remaining"` // 剩余额度（FLOW/SPEND 用）
	ExpiresAt     time.Time       `gorm:"index;not null" json:"expires_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Buff) TableName() string {
	return "buff"
}
