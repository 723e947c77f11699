package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

var ErrOrderNotFound = errors.New("订单不存在")

// OrderRepository 陪玩订单仓储，核心只读
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListEndedByHost 按结单时间倒序取老板的已结单订单
func (r *OrderRepository) ListEndedByHost(ctx context.Context, hostID string, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("host_id = ? AND status = ?", hostID, model.OrderStatusEnded).
		Order("ended_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
