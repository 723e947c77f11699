package job

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/infrastructure/lock"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

// RechargeTimeoutJob 过期充值单关单任务
// 用户下单后没付款的 PENDING 单超时 CAS 置 CLOSED；
// 关单与回调入账用同一状态列做条件更新，谁先成功另一方必然失败
type RechargeTimeoutJob struct {
	db           *gorm.DB
	rdb          *redis.Client
	rechargeRepo *repository.RechargeOrderRepository
	cfg          *config.Config
	instanceID   string
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewRechargeTimeoutJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config, instanceID string) *RechargeTimeoutJob {
	return &RechargeTimeoutJob{
		db:           db,
		rdb:          rdb,
		rechargeRepo: repository.NewRechargeOrderRepository(db),
		cfg:          cfg,
		instanceID:   instanceID,
		stopCh:       make(chan struct{}),
		interval:     time.Minute,
		batchSize:    100,
	}
}

func (j *RechargeTimeoutJob) Start(ctx context.Context) {
	log.Println("[RechargeTimeoutJob] 充值单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RechargeTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[RechargeTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.closeStaleOrders(ctx)
		}
	}
}

func (j *RechargeTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *RechargeTimeoutJob) closeStaleOrders(ctx context.Context) {
	jobLock := lock.NewJobLock(j.rdb, "recharge_timeout", j.instanceID, 30*time.Second)
	acquired, err := jobLock.TryLock(ctx)
	if err != nil || !acquired {
		return
	}
	defer jobLock.Unlock(ctx)

	timeout := time.Duration(j.cfg.Business.RechargeTimeoutMinutes) * time.Minute
	before := time.Now().Add(-timeout)

	orders, err := j.rechargeRepo.GetStalePending(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[RechargeTimeoutJob] 查询超时充值单失败: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	closedCount := 0
	for _, order := range orders {
		if err := j.rechargeRepo.Close(ctx, order.OutTradeNo); err != nil {
			// 输给了并发到达的支付回调，单子已经 PAID，跳过即可
			if errors.Is(err, repository.ErrRechargeOrderState) {
				continue
			}
			log.Printf("[RechargeTimeoutJob] 关单失败: outTradeNo=%s, err=%v", order.OutTradeNo, err)
			continue
		}
		closedCount++
	}

	if closedCount > 0 {
		log.Printf("[RechargeTimeoutJob] 本次关闭 %d 个超时充值单", closedCount)
	}
}
