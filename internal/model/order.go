package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 陪玩订单状态（核心只读 ENDED 订单）
const (
	OrderStatusOngoing = "ONGOING"
	OrderStatusEnded   = "ENDED"
)

// Order 陪玩订单表
// 对核心来说是外部协作方实体：只读取老板的已结单订单，
// 核销折扣时通过 Coupon.OrderID / LotteryDraw.RequestID 做使用标记
type Order struct {
	ID           string          `gorm:"type:varchar(40);primaryKey" json:"id"`
	DisplayNo    string          `gorm:"type:varchar(32)" json:"display_no"`                // 对外展示的单号
	HostID       string          `gorm:"type:varchar(32);index;not null" json:"host_id"`    // 开单老板
	WorkerID     string          `gorm:"type:varchar(32);index" json:"worker_id"`           // 接单陪玩
	Status       string          `gorm:"type:varchar(16);index;not null" json:"status"`     //
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`     // 每小时单价
	TotalMinutes int             `gorm:"not null;default:0" json:"total_minutes"`           // 总时长（分钟）
	EndedAt      *time.Time      `gorm:"index" json:"ended_at,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}
