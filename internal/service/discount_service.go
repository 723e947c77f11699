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

type DiscountKind string

const (
	DiscountKindCoupon  DiscountKind = "coupon"
	DiscountKindLottery DiscountKind = "lottery"
)

// 折扣核销结果状态
const (
	DiscountApplied          = "applied"
	DiscountOrderNotFound    = "order_not_found"
	DiscountNotOrderHost     = "not_order_host"
	DiscountOrderNotEnded    = "order_not_ended"
	DiscountAlreadyUsed      = "already_used"
	DiscountNoCoupon         = "no_coupon"
	DiscountNoLottery        = "no_lottery"
	DiscountNoFee            = "no_fee"
	DiscountInsufficientData = "insufficient_data"
)

// 普通优惠券固定 10% 返利、封顶 20；前 5 分钟免费不计费
var (
	couponRate = decimal.NewFromFloat(0.1)
	couponCap  = decimal.NewFromInt(20)
)

const freeMinutes = 5

// DiscountService 折扣核销：对已结单订单核销一张券，给老板入账返利
type DiscountService struct {
	db             *gorm.DB
	cfg            *config.Config
	orderRepo      *repository.OrderRepository
	instrumentRepo *repository.InstrumentRepository
	outboxRepo     *repository.OutboxRepository
	ledger         *LedgerService
}

func NewDiscountService(db *gorm.DB, cfg *config.Config) *DiscountService {
	return &DiscountService{
		db:             db,
		cfg:            cfg,
		orderRepo:      repository.NewOrderRepository(db),
		instrumentRepo: repository.NewInstrumentRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		ledger:         NewLedgerService(db),
	}
}

// ApplyDiscountRequest 核销请求；CouponID/LotteryID 可选，不传则自动选
// 最早到期的一张
type ApplyDiscountRequest struct {
	OrderID   string
	UserID    string // 必须是订单老板
	Kind      DiscountKind
	CouponID  string
	LotteryID string
}

// ApplyDiscountResult 核销结果，Status 为 applied 之外都是拒绝原因
type ApplyDiscountResult struct {
	Status    string
	Kind      DiscountKind
	Amount    decimal.Decimal
	CouponID  string
	LotteryID string
}

// computeDiscountAmount 返利金额计算
// 计费分钟 = max(0, 总分钟 - 免费5分钟)；按小时单价折算到分钟后乘返利比例，
// 先四舍五入到 2 位小数，再按奖品封顶截断。任何情况下不会出现负数
func computeDiscountAmount(unitPrice decimal.Decimal, totalMinutes int, rate, cap decimal.Decimal) decimal.Decimal {
	if totalMinutes <= freeMinutes {
		return decimal.Zero
	}

	billableMinutes := totalMinutes - freeMinutes
	perMinute := unitPrice.Div(decimal.NewFromInt(60))
	if perMinute.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	discount := perMinute.Mul(decimal.NewFromInt(int64(billableMinutes))).Mul(rate).Round(2)
	if discount.GreaterThan(cap) {
		return cap
	}
	return discount
}

// ApplyDiscountForOrder 对订单核销折扣，整个流程在一个事务内
//
// 并发核销同一张券时，条件更新只让一个请求成功，
// 输掉的请求回滚整个事务并拿到 already_used
func (s *DiscountService) ApplyDiscountForOrder(ctx context.Context, req *ApplyDiscountRequest) (*ApplyDiscountResult, error) {
	now := time.Now()
	result := &ApplyDiscountResult{Kind: req.Kind}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByID(ctx, tx, req.OrderID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				result.Status = DiscountOrderNotFound
				return nil
			}
			return fmt.Errorf("查询订单失败: %w", err)
		}
		if order.HostID != req.UserID {
			result.Status = DiscountNotOrderHost
			return nil
		}
		if order.Status != model.OrderStatusEnded {
			result.Status = DiscountOrderNotEnded
			return nil
		}

		// 防止同一订单重复核销
		used, err := s.instrumentRepo.OrderDiscountUsed(ctx, tx, req.UserID, req.OrderID)
		if err != nil {
			return fmt.Errorf("查询使用标记失败: %w", err)
		}
		if used {
			result.Status = DiscountAlreadyUsed
			return nil
		}

		// 选券前先把到期的扫掉
		if err := s.instrumentRepo.SweepExpiredCoupons(ctx, tx, req.UserID, now); err != nil {
			return fmt.Errorf("过期优惠券巡扫失败: %w", err)
		}
		if err := s.instrumentRepo.SweepExpiredDraws(ctx, tx, req.UserID, model.DiscountPrizeNames(), now); err != nil {
			return fmt.Errorf("过期抽奖券巡扫失败: %w", err)
		}

		rate, cap := couponRate, couponCap
		var coupon *model.Coupon
		var draw *model.LotteryDraw

		if req.Kind == DiscountKindCoupon {
			coupon, err = s.instrumentRepo.FindRedeemableCoupon(ctx, tx, req.UserID, req.CouponID, now)
			if err != nil {
				return fmt.Errorf("查询优惠券失败: %w", err)
			}
			if coupon == nil {
				result.Status = DiscountNoCoupon
				return nil
			}
		} else {
			draw, err = s.instrumentRepo.FindRedeemableDraw(ctx, tx, req.UserID, req.LotteryID, model.DiscountPrizeNames(), now)
			if err != nil {
				return fmt.Errorf("查询抽奖券失败: %w", err)
			}
			if draw == nil {
				result.Status = DiscountNoLottery
				return nil
			}
			if rc, ok := model.DiscountPrizeConfig[draw.Prize.Name]; ok {
				rate, cap = rc.Rate, rc.Cap
			}
		}

		if unitPriceMissing(order) {
			result.Status = DiscountInsufficientData
			return nil
		}

		amount := computeDiscountAmount(order.UnitPrice, order.TotalMinutes, rate, cap)
		if amount.LessThanOrEqual(decimal.Zero) {
			result.Status = DiscountNoFee
			return nil
		}

		// 核销凭证；输掉并发竞争时回滚整个事务
		if req.Kind == DiscountKindCoupon {
			if err := s.instrumentRepo.MarkCouponUsed(ctx, tx, coupon.ID, order.ID, amount, now); err != nil {
				return err
			}
			result.CouponID = coupon.ID
		} else {
			if err := s.instrumentRepo.MarkDrawUsed(ctx, tx, draw.ID, order.ID, now); err != nil {
				return err
			}
			result.LotteryID = draw.ID
		}

		counterparty := order.WorkerID
		if counterparty == "" {
			counterparty = "SYSTEM"
		}
		entry, err := s.ledger.ApplyBalanceDelta(ctx, tx, &DeltaRequest{
			DiscordID:      req.UserID,
			Delta:          repository.BalanceDelta{Total: amount, Recharge: amount},
			Kind:           model.TxnKindDiscountRebate,
			CounterpartyID: counterparty,
		})
		if err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":          model.OutboxEventDiscountApply,
			"order_id":       order.ID,
			"discord_id":     req.UserID,
			"kind":           string(req.Kind),
			"amount":         amount.StringFixed(2),
			"transaction_no": entry.TransactionNo,
			"applied_at":     now.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: entry.TransactionNo,
			Topic:      s.cfg.Kafka.Topic.LedgerEvent,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		result.Status = DiscountApplied
		result.Amount = amount
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrInstrumentConsumed) {
			result.Status = DiscountAlreadyUsed
			return result, nil
		}
		return nil, err
	}

	if result.Status == DiscountApplied {
		log.Printf("折扣核销成功: orderID=%s, userID=%s, kind=%s, amount=%s",
			req.OrderID, req.UserID, req.Kind, result.Amount.StringFixed(2))
	}
	return result, nil
}

func unitPriceMissing(order *model.Order) bool {
	return order.UnitPrice.LessThanOrEqual(decimal.Zero) || order.TotalMinutes <= 0
}

// ============================================================
// 优惠可用订单列表
// ============================================================

const (
	discountableMaxFetch  = 50
	discountableMaxReturn = 20
)

// DiscountableOrder 可用优惠的已结单订单概要
type DiscountableOrder struct {
	ID           string     `json:"id"`
	DisplayNo    string     `json:"display_no"`
	WorkerID     string     `json:"worker_id"`
	TotalMinutes int        `json:"total_minutes"`
	TotalAmount  string     `json:"total_amount"`
	EndedAt      *time.Time `json:"ended_at"`
}

// ListDiscountable 取老板名下还没用过优惠、且会产生费用的已结单订单
func (s *DiscountService) ListDiscountable(ctx context.Context, hostID string) ([]*DiscountableOrder, error) {
	orders, err := s.orderRepo.ListEndedByHost(ctx, hostID, discountableMaxFetch)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []*DiscountableOrder{}, nil
	}

	orderIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
	}
	used, err := s.instrumentRepo.OrdersWithDiscountUsed(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	eligible := make([]*DiscountableOrder, 0, discountableMaxReturn)
	for _, order := range orders {
		if used[order.ID] {
			continue
		}
		if order.TotalMinutes <= freeMinutes || order.UnitPrice.LessThanOrEqual(decimal.Zero) {
			continue
		}

		billable := decimal.NewFromInt(int64(order.TotalMinutes - freeMinutes))
		totalAmount := order.UnitPrice.Mul(billable).Div(decimal.NewFromInt(60)).Round(2)

		eligible = append(eligible, &DiscountableOrder{
			ID:           order.ID,
			DisplayNo:    order.DisplayNo,
			WorkerID:     order.WorkerID,
			TotalMinutes: order.TotalMinutes,
			TotalAmount:  totalAmount.StringFixed(2),
			EndedAt:      order.EndedAt,
		})
		if len(eligible) >= discountableMaxReturn {
			break
		}
	}
	return eligible, nil
}
