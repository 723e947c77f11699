package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/infrastructure/database"
	"github.com/yayaxhy/jinleeWeb/internal/model"
)

// newTestDB 每个测试一个独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Kafka.Topic.LedgerEvent = "ledger-events"
	cfg.ZPay.MerchantID = "20230001"
	cfg.ZPay.Secret = "testsecret"
	cfg.ZPay.SiteName = "test"
	cfg.ZPay.MinAmount = 1.0
	cfg.Withdraw.MinAmount = 100
	cfg.Withdraw.CooldownHours = 72
	cfg.Business.RechargeTimeoutMinutes = 30
	cfg.Business.MaxRetryCount = 5
	return cfg
}

func seedMember(t *testing.T, db *gorm.DB, discordID string, balance, income decimal.Decimal) *model.Member {
	t.Helper()
	member := &model.Member{
		DiscordUserID: discordID,
		TotalBalance:  balance,
		Income:        income,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("写入会员失败: %v", err)
	}
	return member
}

func seedPeiwan(t *testing.T, db *gorm.DB, peiwanID int, discordID string) *model.Peiwan {
	t.Helper()
	peiwan := &model.Peiwan{
		PeiwanID:      peiwanID,
		DiscordUserID: discordID,
	}
	if err := db.Create(peiwan).Error; err != nil {
		t.Fatalf("写入陪玩名片失败: %v", err)
	}
	return peiwan
}

func seedEndedOrder(t *testing.T, db *gorm.DB, id, hostID, workerID string, unitPrice decimal.Decimal, totalMinutes int) *model.Order {
	t.Helper()
	endedAt := time.Now().Add(-time.Hour)
	order := &model.Order{
		ID:           id,
		DisplayNo:    "NO-" + id,
		HostID:       hostID,
		WorkerID:     workerID,
		Status:       model.OrderStatusEnded,
		UnitPrice:    unitPrice,
		TotalMinutes: totalMinutes,
		EndedAt:      &endedAt,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("写入订单失败: %v", err)
	}
	return order
}

func seedCoupon(t *testing.T, db *gorm.DB, discordID string, expiresAt time.Time) *model.Coupon {
	t.Helper()
	coupon := &model.Coupon{
		DiscordID: discordID,
		Type:      model.CouponTypeDiscount90,
		Status:    model.CouponStatusActive,
		IssuedAt:  time.Now().Add(-24 * time.Hour),
		ExpiresAt: expiresAt,
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("写入优惠券失败: %v", err)
	}
	return coupon
}

func seedPrize(t *testing.T, db *gorm.DB, name, prizeType string) *model.LotteryPrize {
	t.Helper()
	prize := &model.LotteryPrize{Name: name, Type: prizeType}
	if err := db.Create(prize).Error; err != nil {
		t.Fatalf("写入奖品失败: %v", err)
	}
	return prize
}

func seedDraw(t *testing.T, db *gorm.DB, userID string, prize *model.LotteryPrize, expiresAt time.Time) *model.LotteryDraw {
	t.Helper()
	draw := &model.LotteryDraw{
		UserID:    userID,
		PrizeID:   prize.ID,
		Status:    model.LotteryStatusUnused,
		ExpiresAt: expiresAt,
	}
	if err := db.Create(draw).Error; err != nil {
		t.Fatalf("写入抽奖记录失败: %v", err)
	}
	draw.Prize = *prize
	return draw
}

func reloadMember(t *testing.T, db *gorm.DB, discordID string) *model.Member {
	t.Helper()
	var member model.Member
	if err := db.Where("discord_user_id = ?", discordID).First(&member).Error; err != nil {
		t.Fatalf("读取会员失败: %v", err)
	}
	return &member
}

func countRows(t *testing.T, db *gorm.DB, value interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(value).Count(&count).Error; err != nil {
		t.Fatalf("统计行数失败: %v", err)
	}
	return count
}
