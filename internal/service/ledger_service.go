package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
	"github.com/yayaxhy/jinleeWeb/pkg/idgen"
)

// LedgerService 账本原语：余额变动 + 追加流水，必须成对出现
//
// 变动类方法都要求在调用方的事务里执行（tx 不允许为 nil），
// 变动失败时整个事务回滚，不存在只改余额不记流水的中间态
type LedgerService struct {
	memberRepo      *repository.MemberRepository
	transactionRepo *repository.TransactionRepository
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		memberRepo:      repository.NewMemberRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// DeltaRequest 一次余额变动请求
type DeltaRequest struct {
	DiscordID      string
	Delta          repository.BalanceDelta // Delta.Total 即流水的 AmountChange
	Kind           string                  // 封闭枚举，见 model.TxnKind*
	CounterpartyID string                  // 对方标识（订单另一方 / 网关交易号）
}

// ApplyBalanceDelta 在事务内读余额、校验、条件更新、追加流水
//
// 流水的 before/after 取自本事务内读到的快照，写入时已保证
// BalanceAfter == BalanceBefore + AmountChange，读取方无需任何兜底重算
func (s *LedgerService) ApplyBalanceDelta(ctx context.Context, tx *gorm.DB, req *DeltaRequest) (*model.IndividualTransaction, error) {
	member, err := s.memberRepo.GetByDiscordID(ctx, tx, req.DiscordID)
	if err != nil {
		return nil, err
	}

	before := member.TotalBalance
	after := before.Add(req.Delta.Total)
	if req.Delta.Total.IsNegative() && after.IsNegative() {
		return nil, repository.ErrBalanceNotEnough
	}

	if err := s.memberRepo.ApplyDelta(ctx, tx, req.DiscordID, req.Delta, member.Version); err != nil {
		return nil, fmt.Errorf("余额变动失败: %w", err)
	}

	entry := &model.IndividualTransaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		DiscordID:      req.DiscordID,
		CounterpartyID: req.CounterpartyID,
		BalanceBefore:  before,
		AmountChange:   req.Delta.Total,
		BalanceAfter:   after,
		Kind:           req.Kind,
	}
	if err := s.transactionRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	return entry, nil
}

// ListTransactions 分页取某账户的流水
func (s *LedgerService) ListTransactions(ctx context.Context, discordID string, page, pageSize int) ([]*model.IndividualTransaction, int64, error) {
	return s.transactionRepo.ListByDiscordID(ctx, discordID, page, pageSize)
}

// ReconcileResult 对账结果：流水合计应与当前余额一致
type ReconcileResult struct {
	DiscordID    string          `json:"discord_id"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
	Consistent   bool            `json:"consistent"`
}

// Reconcile 按流水合计重算余额并与账户当前值比对
func (s *LedgerService) Reconcile(ctx context.Context, discordID string) (*ReconcileResult, error) {
	member, err := s.memberRepo.GetByDiscordID(ctx, nil, discordID)
	if err != nil {
		return nil, err
	}
	sum, err := s.transactionRepo.SumAmountChange(ctx, discordID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		DiscordID:    discordID,
		TotalBalance: member.TotalBalance,
		LedgerSum:    sum,
		Consistent:   member.TotalBalance.Equal(sum),
	}, nil
}
