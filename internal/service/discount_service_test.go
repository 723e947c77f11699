package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

func TestComputeDiscountAmount(t *testing.T) {
	cases := []struct {
		name         string
		unitPrice    string
		totalMinutes int
		rate         string
		cap          string
		want         string
	}{
		{"标准场景", "60", 65, "0.1", "20", "6"},
		{"免费时长内", "60", 5, "0.1", "20", "0"},
		{"刚过免费时长", "60", 6, "0.1", "20", "0.1"},
		{"零时长", "60", 0, "0.1", "20", "0"},
		{"命中封顶", "600", 65, "0.3", "150", "150"},
		{"四舍五入到分", "70", 34, "0.1", "20", "3.38"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unitPrice, _ := decimal.NewFromString(tc.unitPrice)
			rate, _ := decimal.NewFromString(tc.rate)
			cap, _ := decimal.NewFromString(tc.cap)
			want, _ := decimal.NewFromString(tc.want)

			got := computeDiscountAmount(unitPrice, tc.totalMinutes, rate, cap)
			if !got.Equal(want) {
				t.Errorf("computeDiscountAmount = %s, 期望 %s", got, want)
			}
		})
	}
}

func TestApplyDiscountCoupon(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)
	coupon := seedCoupon(t, db, "host1", time.Now().Add(24*time.Hour))

	result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1",
		UserID:  "host1",
		Kind:    DiscountKindCoupon,
	})
	if err != nil {
		t.Fatalf("核销失败: %v", err)
	}
	if result.Status != DiscountApplied {
		t.Fatalf("Status = %s, 期望 applied", result.Status)
	}
	if !result.Amount.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Amount = %s, 期望 6", result.Amount)
	}
	if result.CouponID != coupon.ID {
		t.Errorf("CouponID = %s, 期望 %s", result.CouponID, coupon.ID)
	}

	// 券已核销并关联订单
	var used model.Coupon
	if err := db.First(&used, "id = ?", coupon.ID).Error; err != nil {
		t.Fatalf("读取优惠券失败: %v", err)
	}
	if used.Status != model.CouponStatusUsed {
		t.Errorf("券状态 = %s, 期望 USED", used.Status)
	}
	if used.OrderID == nil || *used.OrderID != "O1" {
		t.Errorf("券未关联订单: %v", used.OrderID)
	}

	// 返利只进 TotalBalance/Recharge，不进 Income
	member := reloadMember(t, db, "host1")
	if !member.TotalBalance.Equal(decimal.NewFromInt(6)) {
		t.Errorf("TotalBalance = %s, 期望 6", member.TotalBalance)
	}
	if !member.Recharge.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Recharge = %s, 期望 6", member.Recharge)
	}
	if !member.Income.IsZero() {
		t.Errorf("Income = %s, 期望 0", member.Income)
	}

	// 流水与出站消息各一条
	var txn model.IndividualTransaction
	if err := db.First(&txn, "discord_id = ?", "host1").Error; err != nil {
		t.Fatalf("读取流水失败: %v", err)
	}
	if txn.Kind != model.TxnKindDiscountRebate {
		t.Errorf("流水类型 = %s, 期望 优惠返利", txn.Kind)
	}
	if txn.CounterpartyID != "worker1" {
		t.Errorf("对方标识 = %s, 期望 worker1", txn.CounterpartyID)
	}
	if n := countRows(t, db, &model.OutboxMessage{}); n != 1 {
		t.Errorf("出站消息 %d 条, 期望 1", n)
	}
}

func TestApplyDiscountGuards(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)

	ongoing := &model.Order{
		ID:        "O2",
		HostID:    "host1",
		WorkerID:  "worker1",
		Status:    model.OrderStatusOngoing,
		UnitPrice: decimal.NewFromInt(60),
	}
	if err := db.Create(ongoing).Error; err != nil {
		t.Fatalf("写入订单失败: %v", err)
	}

	cases := []struct {
		name    string
		orderID string
		userID  string
		want    string
	}{
		{"订单不存在", "missing", "host1", DiscountOrderNotFound},
		{"非订单老板", "O1", "stranger", DiscountNotOrderHost},
		{"订单未结束", "O2", "host1", DiscountOrderNotEnded},
		{"没有可用券", "O1", "host1", DiscountNoCoupon},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
				OrderID: tc.orderID,
				UserID:  tc.userID,
				Kind:    DiscountKindCoupon,
			})
			if err != nil {
				t.Fatalf("核销出错: %v", err)
			}
			if result.Status != tc.want {
				t.Errorf("Status = %s, 期望 %s", result.Status, tc.want)
			}
		})
	}
}

func TestApplyDiscountNoFeeKeepsCoupon(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 5)
	coupon := seedCoupon(t, db, "host1", time.Now().Add(24*time.Hour))

	result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1",
		UserID:  "host1",
		Kind:    DiscountKindCoupon,
	})
	if err != nil {
		t.Fatalf("核销出错: %v", err)
	}
	if result.Status != DiscountNoFee {
		t.Fatalf("Status = %s, 期望 no_fee", result.Status)
	}

	// 没产生费用时券必须原样保留
	var kept model.Coupon
	if err := db.First(&kept, "id = ?", coupon.ID).Error; err != nil {
		t.Fatalf("读取优惠券失败: %v", err)
	}
	if kept.Status != model.CouponStatusActive {
		t.Errorf("券状态 = %s, 期望 ACTIVE", kept.Status)
	}
}

func TestApplyDiscountSameOrderTwice(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)
	seedCoupon(t, db, "host1", time.Now().Add(24*time.Hour))
	seedCoupon(t, db, "host1", time.Now().Add(48*time.Hour))

	first, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1", UserID: "host1", Kind: DiscountKindCoupon,
	})
	if err != nil || first.Status != DiscountApplied {
		t.Fatalf("首次核销失败: status=%v, err=%v", first, err)
	}

	second, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1", UserID: "host1", Kind: DiscountKindCoupon,
	})
	if err != nil {
		t.Fatalf("二次核销出错: %v", err)
	}
	if second.Status != DiscountAlreadyUsed {
		t.Errorf("Status = %s, 期望 already_used", second.Status)
	}

	// 手里还剩的第二张券不能被消耗
	var active int64
	db.Model(&model.Coupon{}).Where("status = ?", model.CouponStatusActive).Count(&active)
	if active != 1 {
		t.Errorf("剩余可用券 %d 张, 期望 1", active)
	}

	member := reloadMember(t, db, "host1")
	if !member.TotalBalance.Equal(decimal.NewFromInt(6)) {
		t.Errorf("TotalBalance = %s, 期望只返一次的 6", member.TotalBalance)
	}
}

func TestApplyDiscountLotteryRateAndCap(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(600), 65)
	prize := seedPrize(t, db, "7折券", model.LotteryPrizeTypeCoupon)
	draw := seedDraw(t, db, "host1", prize, time.Now().Add(24*time.Hour))

	result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1",
		UserID:  "host1",
		Kind:    DiscountKindLottery,
	})
	if err != nil {
		t.Fatalf("核销失败: %v", err)
	}
	if result.Status != DiscountApplied {
		t.Fatalf("Status = %s, 期望 applied", result.Status)
	}
	// 10/分钟 × 60 计费分钟 × 0.3 = 180，被 150 封顶
	if !result.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Amount = %s, 期望封顶 150", result.Amount)
	}
	if result.LotteryID != draw.ID {
		t.Errorf("LotteryID = %s, 期望 %s", result.LotteryID, draw.ID)
	}

	var used model.LotteryDraw
	if err := db.First(&used, "id = ?", draw.ID).Error; err != nil {
		t.Fatalf("读取抽奖记录失败: %v", err)
	}
	if used.Status != model.LotteryStatusUsed {
		t.Errorf("状态 = %s, 期望 USED", used.Status)
	}
	if used.RequestID != "O1" {
		t.Errorf("RequestID = %s, 期望 O1", used.RequestID)
	}
}

func TestApplyDiscountExpiredCouponSwept(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)
	expired := seedCoupon(t, db, "host1", time.Now().Add(-time.Hour))

	result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1",
		UserID:  "host1",
		Kind:    DiscountKindCoupon,
	})
	if err != nil {
		t.Fatalf("核销出错: %v", err)
	}
	if result.Status != DiscountNoCoupon {
		t.Fatalf("Status = %s, 期望 no_coupon", result.Status)
	}

	// 过期券在选券前被惰性标记
	var swept model.Coupon
	if err := db.First(&swept, "id = ?", expired.ID).Error; err != nil {
		t.Fatalf("读取优惠券失败: %v", err)
	}
	if swept.Status != model.CouponStatusExpired {
		t.Errorf("券状态 = %s, 期望 EXPIRED", swept.Status)
	}
}

func TestApplyDiscountPicksEarliestExpiry(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)
	later := seedCoupon(t, db, "host1", time.Now().Add(72*time.Hour))
	sooner := seedCoupon(t, db, "host1", time.Now().Add(24*time.Hour))

	result, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O1",
		UserID:  "host1",
		Kind:    DiscountKindCoupon,
	})
	if err != nil || result.Status != DiscountApplied {
		t.Fatalf("核销失败: status=%v, err=%v", result, err)
	}
	if result.CouponID != sooner.ID {
		t.Errorf("用掉的是 %s, 期望先用快到期的 %s (晚到期的是 %s)",
			result.CouponID, sooner.ID, later.ID)
	}
}

func TestListDiscountable(t *testing.T) {
	db := newTestDB(t)
	svc := NewDiscountService(db, newTestConfig())
	ctx := context.Background()

	seedMember(t, db, "host1", decimal.Zero, decimal.Zero)
	seedEndedOrder(t, db, "O1", "host1", "worker1", decimal.NewFromInt(60), 65)
	seedEndedOrder(t, db, "O2", "host1", "worker1", decimal.NewFromInt(60), 5)  // 无费用
	seedEndedOrder(t, db, "O3", "host1", "worker2", decimal.NewFromInt(90), 30) // 有费用
	seedEndedOrder(t, db, "O4", "other", "worker1", decimal.NewFromInt(60), 65) // 别人的单
	seedCoupon(t, db, "host1", time.Now().Add(24*time.Hour))

	// O3 先用掉优惠
	used, err := svc.ApplyDiscountForOrder(ctx, &ApplyDiscountRequest{
		OrderID: "O3", UserID: "host1", Kind: DiscountKindCoupon,
	})
	if err != nil || used.Status != DiscountApplied {
		t.Fatalf("预核销失败: status=%v, err=%v", used, err)
	}

	orders, err := svc.ListDiscountable(ctx, "host1")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("可用订单 %d 个, 期望只剩 O1", len(orders))
	}
	if orders[0].ID != "O1" {
		t.Errorf("订单 = %s, 期望 O1", orders[0].ID)
	}
	if orders[0].TotalAmount != "60.00" {
		t.Errorf("TotalAmount = %s, 期望 60.00", orders[0].TotalAmount)
	}
}

// 条件更新输掉竞争时必须返回已消费，这是防双花的唯一并发原语
func TestMarkCouponUsedLosesRace(t *testing.T) {
	db := newTestDB(t)
	instrumentRepo := repository.NewInstrumentRepository(db)
	ctx := context.Background()
	now := time.Now()

	coupon := seedCoupon(t, db, "u1", now.Add(24*time.Hour))

	picked, err := instrumentRepo.FindRedeemableCoupon(ctx, nil, "u1", "", now)
	if err != nil {
		t.Fatalf("选券失败: %v", err)
	}
	if picked.ID != coupon.ID {
		t.Fatalf("选中 %s, 期望 %s", picked.ID, coupon.ID)
	}

	// 选中之后、置用之前，另一请求抢先用掉了这张券
	if err := db.Model(&model.Coupon{}).Where("id = ?", coupon.ID).
		Update("status", model.CouponStatusUsed).Error; err != nil {
		t.Fatalf("模拟并发占用失败: %v", err)
	}

	err = instrumentRepo.MarkCouponUsed(ctx, nil, picked.ID, "O1", decimal.NewFromInt(6), now)
	if !errors.Is(err, repository.ErrInstrumentConsumed) {
		t.Fatalf("err = %v, 期望 ErrInstrumentConsumed", err)
	}
}

func TestMarkDrawUsedLosesRace(t *testing.T) {
	db := newTestDB(t)
	instrumentRepo := repository.NewInstrumentRepository(db)
	ctx := context.Background()
	now := time.Now()

	prize := seedPrize(t, db, "7折券", model.LotteryPrizeTypeCoupon)
	draw := seedDraw(t, db, "u1", prize, now.Add(24*time.Hour))

	if err := db.Model(&model.LotteryDraw{}).Where("id = ?", draw.ID).
		Update("status", model.LotteryStatusUsed).Error; err != nil {
		t.Fatalf("模拟并发占用失败: %v", err)
	}

	err := instrumentRepo.MarkDrawUsed(ctx, nil, draw.ID, "O1", now)
	if !errors.Is(err, repository.ErrInstrumentConsumed) {
		t.Fatalf("err = %v, 期望 ErrInstrumentConsumed", err)
	}

	var reloaded model.LotteryDraw
	if err := db.First(&reloaded, "id = ?", draw.ID).Error; err != nil {
		t.Fatalf("读取抽奖记录失败: %v", err)
	}
	if reloaded.RequestID != "" {
		t.Errorf("输掉竞争不应写入 RequestID, 实际 %q", reloaded.RequestID)
	}
}
