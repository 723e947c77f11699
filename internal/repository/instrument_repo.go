package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

var (
	// ErrInstrumentConsumed 条件更新影响 0 行：凭证已被并发核销或已过期。
	// 并发竞争是预期情况，调用方按冲突处理，不是系统错误
	ErrInstrumentConsumed = errors.New("凭证已使用或已过期")
	ErrDrawNotFound       = errors.New("抽奖记录不存在")
)

// InstrumentRepository 可兑换凭证仓储，覆盖优惠券与抽奖记录两张表
type InstrumentRepository struct {
	db *gorm.DB
}

func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) orDB(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// ============================================================
// 过期巡扫
// ============================================================

// SweepExpiredCoupons 把到期未用的优惠券批量置为 EXPIRED
func (r *InstrumentRepository) SweepExpiredCoupons(ctx context.Context, tx *gorm.DB, discordID string, now time.Time) error {
	return r.orDB(tx).WithContext(ctx).
		Model(&model.Coupon{}).
		Where("discord_id = ? AND status = ? AND expires_at <= ?", discordID, model.CouponStatusActive, now).
		Update("status", model.CouponStatusExpired).Error
}

// SweepExpiredDraws 把到期未用的抽奖记录批量置为 EXPIRED
// prizeNames 非空时只扫指定奖品
func (r *InstrumentRepository) SweepExpiredDraws(ctx context.Context, tx *gorm.DB, userID string, prizeNames []string, now time.Time) error {
	query := r.orDB(tx).WithContext(ctx).
		Model(&model.LotteryDraw{}).
		Where("user_id = ? AND status = ? AND expires_at <= ?", userID, model.LotteryStatusUnused, now)
	if len(prizeNames) > 0 {
		query = query.Where("prize_id IN (?)",
			r.orDB(tx).Model(&model.LotteryPrize{}).Select("id").Where("name IN ?", prizeNames))
	}
	return query.Update("status", model.LotteryStatusExpired).Error
}

// SweepAllExpired 全量过期巡扫，后台任务用
func (r *InstrumentRepository) SweepAllExpired(ctx context.Context, now time.Time) (int64, error) {
	coupons := r.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("status = ? AND expires_at <= ?", model.CouponStatusActive, now).
		Update("status", model.CouponStatusExpired)
	if coupons.Error != nil {
		return 0, coupons.Error
	}

	draws := r.db.WithContext(ctx).
		Model(&model.LotteryDraw{}).
		Where("status = ? AND expires_at <= ?", model.LotteryStatusUnused, now).
		Update("status", model.LotteryStatusExpired)
	if draws.Error != nil {
		return coupons.RowsAffected, draws.Error
	}
	return coupons.RowsAffected + draws.RowsAffected, nil
}

// ============================================================
// 候选凭证选取
// ============================================================
//
// 排序固定为 到期时间升序、创建时间升序：并发核销请求会收敛到同一张候选券，
// 由条件更新保证只有一个赢家

// FindRedeemableCoupon 选取一张可用优惠券；couponID 非空时必须精确命中
func (r *InstrumentRepository) FindRedeemableCoupon(ctx context.Context, tx *gorm.DB, discordID, couponID string, now time.Time) (*model.Coupon, error) {
	query := r.orDB(tx).WithContext(ctx).
		Where("discord_id = ? AND type = ? AND status = ? AND expires_at > ?",
			discordID, model.CouponTypeDiscount90, model.CouponStatusActive, now)
	if couponID != "" {
		query = query.Where("id = ?", couponID)
	}

	var coupon model.Coupon
	err := query.Order("expires_at ASC, created_at ASC").First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// FindRedeemableDraw 按奖品名集合选取一条可用抽奖记录
func (r *InstrumentRepository) FindRedeemableDraw(ctx context.Context, tx *gorm.DB, userID, drawID string, prizeNames []string, now time.Time) (*model.LotteryDraw, error) {
	query := r.orDB(tx).WithContext(ctx).
		Preload("Prize").
		Joins("JOIN lottery_prize ON lottery_prize.id = lottery_draw.prize_id").
		Where("lottery_draw.user_id = ? AND lottery_draw.status = ? AND lottery_draw.expires_at > ?",
			userID, model.LotteryStatusUnused, now).
		Where("lottery_prize.name IN ?", prizeNames)
	if drawID != "" {
		query = query.Where("lottery_draw.id = ?", drawID)
	}

	var draw model.LotteryDraw
	err := query.Order("lottery_draw.expires_at ASC, lottery_draw.created_at ASC").First(&draw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &draw, nil
}

// GetDrawByID 取抽奖记录（带奖品），不存在返回 ErrDrawNotFound
func (r *InstrumentRepository) GetDrawByID(ctx context.Context, drawID string) (*model.LotteryDraw, error) {
	var draw model.LotteryDraw
	err := r.db.WithContext(ctx).Preload("Prize").Where("id = ?", drawID).First(&draw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDrawNotFound
		}
		return nil, err
	}
	return &draw, nil
}

// ============================================================
// 核销（条件更新，RowsAffected 即并发控制）
// ============================================================

// MarkCouponUsed 核销优惠券，只在状态仍为 ACTIVE 时成功
func (r *InstrumentRepository) MarkCouponUsed(ctx context.Context, tx *gorm.DB, couponID, orderID string, discountAmount decimal.Decimal, now time.Time) error {
	result := r.orDB(tx).WithContext(ctx).
		Model(&model.Coupon{}).
		Where("id = ? AND status = ?", couponID, model.CouponStatusActive).
		Updates(map[string]interface{}{
			"status":          model.CouponStatusUsed,
			"order_id":        orderID,
			"discount_amount": discountAmount,
			"consumed_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrInstrumentConsumed
	}
	return nil
}

// MarkDrawUsed 核销抽奖记录，只在状态仍为 UNUSED 时成功
func (r *InstrumentRepository) MarkDrawUsed(ctx context.Context, tx *gorm.DB, drawID, requestID string, now time.Time) error {
	result := r.orDB(tx).WithContext(ctx).
		Model(&model.LotteryDraw{}).
		Where("id = ? AND status = ?", drawID, model.LotteryStatusUnused).
		Updates(map[string]interface{}{
			"status":     model.LotteryStatusUsed,
			"request_id": requestID,
			"consume_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrInstrumentConsumed
	}
	return nil
}

// ============================================================
// 订单级使用标记查询
// ============================================================

// OrderDiscountUsed 该订单是否已核销过折扣
// 优惠券按 order_id 关联，抽奖券按 request_id 关联（限折扣类奖品）
func (r *InstrumentRepository) OrderDiscountUsed(ctx context.Context, tx *gorm.DB, userID, orderID string) (bool, error) {
	db := r.orDB(tx).WithContext(ctx)

	var couponCount int64
	err := db.Model(&model.Coupon{}).
		Where("order_id = ? AND status = ?", orderID, model.CouponStatusUsed).
		Count(&couponCount).Error
	if err != nil {
		return false, err
	}
	if couponCount > 0 {
		return true, nil
	}

	var drawCount int64
	err = db.Model(&model.LotteryDraw{}).
		Joins("JOIN lottery_prize ON lottery_prize.id = lottery_draw.prize_id").
		Where("lottery_draw.user_id = ? AND lottery_draw.status = ? AND lottery_draw.request_id = ?",
			userID, model.LotteryStatusUsed, orderID).
		Where("lottery_prize.name IN ?", model.DiscountPrizeNames()).
		Count(&drawCount).Error
	if err != nil {
		return false, err
	}
	return drawCount > 0, nil
}

// OrdersWithDiscountUsed 批量版使用标记查询，优惠可用列表用
func (r *InstrumentRepository) OrdersWithDiscountUsed(ctx context.Context, orderIDs []string) (map[string]bool, error) {
	used := make(map[string]bool)
	if len(orderIDs) == 0 {
		return used, nil
	}

	var coupons []model.Coupon
	err := r.db.WithContext(ctx).
		Select("order_id").
		Where("order_id IN ? AND status = ?", orderIDs, model.CouponStatusUsed).
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	for _, c := range coupons {
		if c.OrderID != nil {
			used[*c.OrderID] = true
		}
	}

	var draws []model.LotteryDraw
	err = r.db.WithContext(ctx).
		Select("lottery_draw.request_id").
		Joins("JOIN lottery_prize ON lottery_prize.id = lottery_draw.prize_id").
		Where("lottery_draw.request_id IN ? AND lottery_draw.status = ?", orderIDs, model.LotteryStatusUsed).
		Where("lottery_prize.name IN ?", model.DiscountPrizeNames()).
		Find(&draws).Error
	if err != nil {
		return nil, err
	}
	for _, d := range draws {
		used[d.RequestID] = true
	}
	return used, nil
}
