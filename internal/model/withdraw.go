package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawRequest 提现申请表
// 申请创建与余额扣减在同一事务内完成；冷却期校验以本表最近一条记录为准
type WithdrawRequest struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DiscordID string          `gorm:"type:varchar(32);index;not null" json:"discord_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method    string          `gorm:"type:varchar(32);not null" json:"method"` // 收款方式，自由文本
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WithdrawRequest) TableName() string {
	return "withdraw_request"
}
