package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

var (
	ErrWithdrawAmountInvalid = errors.New("提现金额不符合要求")
	ErrWithdrawInsufficient  = errors.New("可提现收入不足")
)

// WithdrawCooldownError 冷却期内重复申请，带下次可申请时刻
type WithdrawCooldownError struct {
	NextEligibleAt time.Time
}

func (e *WithdrawCooldownError) Error() string {
	return fmt.Sprintf("提现冷却中，%s 后可再次申请", e.NextEligibleAt.Format("2006-01-02 15:04:05"))
}

// WithdrawService 提现申请
//
// 金额只收整数元，最低额与冷却期来自配置。扣减同时压低
// Income 与 TotalBalance，两者都必须足额
type WithdrawService struct {
	db           *gorm.DB
	cfg          *config.Config
	memberRepo   *repository.MemberRepository
	withdrawRepo *repository.WithdrawRepository
	outboxRepo   *repository.OutboxRepository
	ledger       *LedgerService
}

func NewWithdrawService(db *gorm.DB, cfg *config.Config) *WithdrawService {
	return &WithdrawService{
		db:           db,
		cfg:          cfg,
		memberRepo:   repository.NewMemberRepository(db),
		withdrawRepo: repository.NewWithdrawRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		ledger:       NewLedgerService(db),
	}
}

// WithdrawRequest 提现申请入参
type WithdrawRequest struct {
	DiscordID string
	Amount    int64
	Method    string // 收款方式描述，原样入流水对方标识
}

// WithdrawResult 申请结果与扣减后余量
// 冷却期启用时带下次可申请时刻
type WithdrawResult struct {
	TransactionNo    string          `json:"transaction_no"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingIncome  decimal.Decimal `json:"remaining_income"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	NextEligibleAt   *time.Time      `json:"next_eligible_at,omitempty"`
}

// Apply 发起一笔提现
func (s *WithdrawService) Apply(ctx context.Context, req *WithdrawRequest) (*WithdrawResult, error) {
	// 正整数校验不依赖配置，最低限额配错也不能放过 0 或负数
	if req.Amount <= 0 || req.Amount < s.cfg.Withdraw.MinAmount {
		return nil, ErrWithdrawAmountInvalid
	}

	now := time.Now()
	if s.cfg.Withdraw.CooldownHours > 0 {
		latest, err := s.withdrawRepo.GetLatest(ctx, nil, req.DiscordID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			next := latest.CreatedAt.Add(time.Duration(s.cfg.Withdraw.CooldownHours) * time.Hour)
			if now.Before(next) {
				return nil, &WithdrawCooldownError{NextEligibleAt: next}
			}
		}
	}

	amount := decimal.NewFromInt(req.Amount)
	var result *WithdrawResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		member, err := s.memberRepo.GetByDiscordID(ctx, tx, req.DiscordID)
		if err != nil {
			return err
		}
		if member.Income.LessThan(amount) || member.TotalBalance.LessThan(amount) {
			return ErrWithdrawInsufficient
		}

		txn, err := s.ledger.ApplyBalanceDelta(ctx, tx, &DeltaRequest{
			DiscordID: req.DiscordID,
			Delta: repository.BalanceDelta{
				Total:  amount.Neg(),
				Income: amount.Neg(),
			},
			Kind:           model.TxnKindWithdraw,
			CounterpartyID: req.Method,
		})
		if err != nil {
			return err
		}

		if err := s.withdrawRepo.Create(ctx, tx, &model.WithdrawRequest{
			DiscordID: req.DiscordID,
			Amount:    amount,
			Method:    req.Method,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if err := s.memberRepo.MirrorPeiwanBalance(ctx, tx, req.DiscordID, txn.BalanceAfter); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":          model.OutboxEventWithdrawCreate,
			"transaction_no": txn.TransactionNo,
			"discord_id":     req.DiscordID,
			"amount":         amount.StringFixed(2),
			"method":         req.Method,
			"created_at":     now.Format(time.RFC3339),
		})
		if err := s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: txn.TransactionNo,
			Topic:      s.cfg.Kafka.Topic.LedgerEvent,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}); err != nil {
			return err
		}

		result = &WithdrawResult{
			TransactionNo:    txn.TransactionNo,
			Amount:           amount,
			RemainingIncome:  member.Income.Sub(amount),
			RemainingBalance: txn.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.Withdraw.CooldownHours > 0 {
		next := now.Add(time.Duration(s.cfg.Withdraw.CooldownHours) * time.Hour)
		result.NextEligibleAt = &next
	}

	log.Printf("提现申请成功: discordID=%s, amount=%s, txn=%s",
		req.DiscordID, amount.StringFixed(2), result.TransactionNo)
	return result, nil
}
