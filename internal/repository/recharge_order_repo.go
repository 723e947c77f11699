package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

var (
	ErrRechargeOrderNotFound = errors.New("充值单不存在")
	// ErrRechargeOrderState 条件更新影响 0 行：充值单状态已被并发改变
	ErrRechargeOrderState = errors.New("充值单状态不合法")
)

type RechargeOrderRepository struct {
	db *gorm.DB
}

func NewRechargeOrderRepository(db *gorm.DB) *RechargeOrderRepository {
	return &RechargeOrderRepository{db: db}
}

func (r *RechargeOrderRepository) Create(ctx context.Context, order *model.ZPayRechargeOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *RechargeOrderRepository) GetByOutTradeNo(ctx context.Context, tx *gorm.DB, outTradeNo string) (*model.ZPayRechargeOrder, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.ZPayRechargeOrder
	err := tx.WithContext(ctx).Where("out_trade_no = ?", outTradeNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid PENDING -> PAID，条件更新保证同一单只入账一次
func (r *RechargeOrderRepository) MarkPaid(ctx context.Context, tx *gorm.DB, outTradeNo, gatewayTradeNo, notifyPayload string, paidAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ZPayRechargeOrder{}).
		Where("out_trade_no = ? AND status = ?", outTradeNo, model.RechargeOrderStatusPending).
		Updates(map[string]interface{}{
			"status":           model.RechargeOrderStatusPaid,
			"gateway_trade_no": gatewayTradeNo,
			"notify_payload":   notifyPayload,
			"paid_at":          paidAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrRechargeOrderState
	}
	return nil
}

// GetStalePending 取超时未支付的 PENDING 单，关单任务用
func (r *RechargeOrderRepository) GetStalePending(ctx context.Context, before time.Time, limit int) ([]*model.ZPayRechargeOrder, error) {
	var orders []*model.ZPayRechargeOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.RechargeOrderStatusPending, before).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// Close PENDING -> CLOSED；已被回调改为 PAID 的单子不会被关掉
func (r *RechargeOrderRepository) Close(ctx context.Context, outTradeNo string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ZPayRechargeOrder{}).
		Where("out_trade_no = ? AND status = ?", outTradeNo, model.RechargeOrderStatusPending).
		Update("status", model.RechargeOrderStatusClosed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrRechargeOrderState
	}
	return nil
}
