package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member 会员账户表
// 以 Discord ID 为主维度，记录余额、收益、累计充值、累计消费
//
// TotalBalance 是唯一权威的可用余额；Income 是可提现的子余额，
// 优惠返利只进 TotalBalance/Recharge，不进 Income
type Member struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DiscordUserID  string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"discord_user_id"` // Discord 用户ID
	Username       string          `gorm:"type:varchar(64)" json:"username"`                             // 展示用昵称
	TotalBalance   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_balance"`   // 可用余额
	Income         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"income"`          // 可提现收益
	Recharge       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"recharge"`        // 累计充值
	TotalSpent     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_spent"`     // 累计消费
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"commission_rate"`  // 抽成比例（百分比）
	Version        int             `gorm:"not null;default:0" json:"version"`                            // 乐观锁版本号
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "member"
}

// Peiwan 陪玩名片表（节选）
// 核心只关心两件事：数字名片号到 Discord ID 的解析，以及充值后的余额镜像
type Peiwan struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PeiwanID      int             `gorm:"uniqueIndex;not null" json:"peiwan_id"`                         // 对外展示的数字名片号
	DiscordUserID string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"discord_user_id"` // 归属用户
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`          // 会员余额镜像
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Peiwan) TableName() string {
	return "peiwan"
}
