package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

var ErrInvalidTxnKind = errors.New("非法的流水类型")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 追加一条流水，只允许封闭枚举内的类型
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.IndividualTransaction) error {
	if !model.ValidTxnKind(trans.Kind) {
		return fmt.Errorf("%w: %s", ErrInvalidTxnKind, trans.Kind)
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.IndividualTransaction, error) {
	var trans model.IndividualTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByDiscordID(ctx context.Context, discordID string, page, pageSize int) ([]*model.IndividualTransaction, int64, error) {
	var transactions []*model.IndividualTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.IndividualTransaction{}).Where("discord_id = ?", discordID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumAmountChange 汇总某账户全部流水的变动金额，对账时应当等于当前余额
func (r *TransactionRepository) SumAmountChange(ctx context.Context, discordID string) (decimal.Decimal, error) {
	var entries []*model.IndividualTransaction
	err := r.db.WithContext(ctx).
		Where("discord_id = ?", discordID).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, entry := range entries {
		sum = sum.Add(entry.AmountChange)
	}
	return sum, nil
}
