package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 流水类型常量
// ============================================================================
//
// 流水类型是封闭枚举，写入方只允许使用下列常量，
// 避免自由字符串把报表打散

const (
	TxnKindRecharge       = "充值"
	TxnKindWithdraw       = "提现"
	TxnKindDiscountRebate = "优惠返利"
)

// ValidTxnKind 校验流水类型是否在枚举内
func ValidTxnKind(kind string) bool {
	switch kind {
	case TxnKindRecharge, TxnKindWithdraw, TxnKindDiscountRebate:
		return true
	}
	return false
}

// IndividualTransaction 个人流水表
// 记录会员账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额快照 —— BalanceAfter 必须等于 BalanceBefore + AmountChange
// 3. 写入时即保证一致，读取方永远不需要用 after-before 反推金额
type IndividualTransaction struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`  // 流水号（全局唯一）
	DiscordID      string          `gorm:"type:varchar(32);index;not null" json:"discord_id"`            // 账户归属
	CounterpartyID string          `gorm:"type:varchar(64);not null" json:"counterparty_id"`             // 对方标识（订单另一方 / 网关交易号）
	BalanceBefore  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance_before"`            // 变动前余额
	AmountChange   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_change"`             // 变动金额（入账为正，出账为负）
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance_after"`             // 变动后余额
	Kind           string          `gorm:"type:varchar(20);index;not null" json:"kind"`                  // 流水类型，见上方枚举
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (IndividualTransaction) TableName() string {
	return "individual_transaction"
}
