package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/pkg/zpay"
)

func signedNotifyParams(secret, outTradeNo, money string) map[string]string {
	params := map[string]string{
		"pid":          "20230001",
		"trade_no":     "ZP20260830001",
		"out_trade_no": outTradeNo,
		"type":         model.ZPayChannelAlipay,
		"name":         "test-充值",
		"money":        money,
		"trade_status": "TRADE_SUCCESS",
	}
	params["sign"] = zpay.BuildSignature(params, secret)
	return params
}

func TestCreateRechargeOrder(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	result, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if result.OutTradeNo == "" {
		t.Fatal("缺少商户交易号")
	}
	if !strings.Contains(result.PayURL, "sign=") || !strings.Contains(result.PayURL, "out_trade_no="+result.OutTradeNo) {
		t.Errorf("收银台链接不完整: %s", result.PayURL)
	}

	var order model.ZPayRechargeOrder
	if err := db.First(&order, "out_trade_no = ?", result.OutTradeNo).Error; err != nil {
		t.Fatalf("读取充值单失败: %v", err)
	}
	if order.Status != model.RechargeOrderStatusPending {
		t.Errorf("状态 = %s, 期望 PENDING", order.Status)
	}
	if !order.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("金额 = %s, 期望 50", order.Amount)
	}

	// 下单同时惰性建档
	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.IsZero() {
		t.Errorf("新会员余额 = %s, 期望 0", member.TotalBalance)
	}
}

func TestCreateRechargeOrderValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPaymentService(db, newTestConfig())
	ctx := context.Background()

	_, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromFloat(0.5),
		Channel:   model.ZPayChannelAlipay,
	})
	if !errors.Is(err, ErrRechargeAmountTooSmall) {
		t.Errorf("err = %v, 期望 ErrRechargeAmountTooSmall", err)
	}

	_, err = svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(10),
		Channel:   "paypal",
	})
	if !errors.Is(err, ErrRechargeChannelInvalid) {
		t.Errorf("err = %v, 期望 ErrRechargeChannelInvalid", err)
	}
}

func TestNotifyCreditsAndMirrors(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	seedPeiwan(t, db, 123, "u1")
	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	params := signedNotifyParams(cfg.ZPay.Secret, order.OutTradeNo, "50.00")
	reply := svc.HandleGatewayNotification(ctx, params, "raw")
	if reply != NotifyReplySuccess {
		t.Fatalf("应答 = %s, 期望 success", reply)
	}

	var paid model.ZPayRechargeOrder
	if err := db.First(&paid, "out_trade_no = ?", order.OutTradeNo).Error; err != nil {
		t.Fatalf("读取充值单失败: %v", err)
	}
	if paid.Status != model.RechargeOrderStatusPaid {
		t.Errorf("状态 = %s, 期望 PAID", paid.Status)
	}
	if paid.GatewayTradeNo != "ZP20260830001" {
		t.Errorf("网关交易号 = %s", paid.GatewayTradeNo)
	}
	if paid.PaidAt == nil {
		t.Error("缺少支付时间")
	}

	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalBalance = %s, 期望 50", member.TotalBalance)
	}
	if !member.Recharge.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Recharge = %s, 期望 50", member.Recharge)
	}
	if !member.Income.IsZero() {
		t.Errorf("Income = %s, 期望 0", member.Income)
	}

	// 陪玩名片镜像跟随总余额
	var peiwan model.Peiwan
	if err := db.First(&peiwan, "discord_user_id = ?", "u1").Error; err != nil {
		t.Fatalf("读取陪玩名片失败: %v", err)
	}
	if !peiwan.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("镜像余额 = %s, 期望 50", peiwan.Balance)
	}

	var txn model.IndividualTransaction
	if err := db.First(&txn, "discord_id = ?", "u1").Error; err != nil {
		t.Fatalf("读取流水失败: %v", err)
	}
	if txn.Kind != model.TxnKindRecharge {
		t.Errorf("流水类型 = %s, 期望 充值", txn.Kind)
	}
	if txn.CounterpartyID != "ZP20260830001" {
		t.Errorf("对方标识 = %s, 期望网关交易号", txn.CounterpartyID)
	}

	if n := countRows(t, db, &model.OutboxMessage{}); n != 1 {
		t.Errorf("出站消息 %d 条, 期望 1", n)
	}
}

func TestNotifyReplayIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	params := signedNotifyParams(cfg.ZPay.Secret, order.OutTradeNo, "50.00")
	for i := 0; i < 3; i++ {
		if reply := svc.HandleGatewayNotification(ctx, params, "raw"); reply != NotifyReplySuccess {
			t.Fatalf("第 %d 次应答 = %s, 期望 success", i+1, reply)
		}
	}

	// 重放不二次加钱
	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalBalance = %s, 期望只入账一次的 50", member.TotalBalance)
	}
	if n := countRows(t, db, &model.IndividualTransaction{}); n != 1 {
		t.Errorf("流水 %d 条, 期望 1", n)
	}
}

func TestNotifyRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	params := signedNotifyParams(cfg.ZPay.Secret, order.OutTradeNo, "50.00")
	params["money"] = "500.00" // 改金额但签名没跟上

	if reply := svc.HandleGatewayNotification(ctx, params, "raw"); reply != NotifyReplyFail {
		t.Fatalf("应答 = %s, 期望 fail", reply)
	}

	var pending model.ZPayRechargeOrder
	db.First(&pending, "out_trade_no = ?", order.OutTradeNo)
	if pending.Status != model.RechargeOrderStatusPending {
		t.Errorf("状态 = %s, 期望保持 PENDING", pending.Status)
	}
}

func TestNotifyRejectsAmountMismatch(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	// 签名合法但金额与下单不符
	params := signedNotifyParams(cfg.ZPay.Secret, order.OutTradeNo, "49.99")
	if reply := svc.HandleGatewayNotification(ctx, params, "raw"); reply != NotifyReplyFail {
		t.Fatalf("应答 = %s, 期望 fail", reply)
	}

	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.IsZero() {
		t.Errorf("TotalBalance = %s, 金额不符不允许入账", member.TotalBalance)
	}
}

func TestNotifyRejectsNonPaidStatus(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	params := map[string]string{
		"out_trade_no": order.OutTradeNo,
		"money":        "50.00",
		"trade_status": "WAIT_BUYER_PAY",
	}
	params["sign"] = zpay.BuildSignature(params, cfg.ZPay.Secret)

	// 未支付状态应答 fail 不入账，网关按失败继续重试
	if reply := svc.HandleGatewayNotification(ctx, params, "raw"); reply != NotifyReplyFail {
		t.Fatalf("应答 = %s, 期望 fail", reply)
	}

	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.IsZero() {
		t.Errorf("TotalBalance = %s, 未支付状态不允许入账", member.TotalBalance)
	}
}

func TestNotifyAcceptsStatusKeyAndLowercase(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewPaymentService(db, cfg)
	ctx := context.Background()

	order, err := svc.CreateRechargeOrder(ctx, &CreateRechargeRequest{
		DiscordID: "u1",
		Amount:    decimal.NewFromInt(50),
		Channel:   model.ZPayChannelAlipay,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	// 状态字走 status 键且小写，合法签名必须照常入账
	params := map[string]string{
		"out_trade_no": order.OutTradeNo,
		"trade_no":     "ZP20260830002",
		"money":        "50.00",
		"status":       "trade_success",
	}
	params["sign"] = zpay.BuildSignature(params, cfg.ZPay.Secret)

	if reply := svc.HandleGatewayNotification(ctx, params, "raw"); reply != NotifyReplySuccess {
		t.Fatalf("应答 = %s, 期望 success", reply)
	}

	member := reloadMember(t, db, "u1")
	if !member.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalBalance = %s, 期望 50", member.TotalBalance)
	}
	var paid model.ZPayRechargeOrder
	if err := db.First(&paid, "out_trade_no = ?", order.OutTradeNo).Error; err != nil {
		t.Fatalf("读取充值单失败: %v", err)
	}
	if paid.Status != model.RechargeOrderStatusPaid {
		t.Errorf("状态 = %s, 期望 PAID", paid.Status)
	}
}
