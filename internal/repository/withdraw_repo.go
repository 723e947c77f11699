package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

type WithdrawRepository struct {
	db *gorm.DB
}

func NewWithdrawRepository(db *gorm.DB) *WithdrawRepository {
	return &WithdrawRepository{db: db}
}

func (r *WithdrawRepository) Create(ctx context.Context, tx *gorm.DB, req *model.WithdrawRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

// GetLatest 取某用户最近一次提现申请，冷却期判定用；没有记录返回 nil
func (r *WithdrawRepository) GetLatest(ctx context.Context, tx *gorm.DB, discordID string) (*model.WithdrawRequest, error) {
	if tx == nil {
		tx = r.db
	}
	var req model.WithdrawRequest
	err := tx.WithContext(ctx).
		Where("discord_id = ?", discordID).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
