package job

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/infrastructure/lock"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

// InstrumentSweeperJob 凭证过期巡检
// 核销路径上本来就有针对当前用户的惰性过期标记，这里是全量兜底，
// 把长期不活跃用户手里过期的券也翻成 EXPIRED，保证报表口径一致
type InstrumentSweeperJob struct {
	db             *gorm.DB
	rdb            *redis.Client
	instrumentRepo *repository.InstrumentRepository
	cfg            *config.Config
	instanceID     string
	stopCh         chan struct{}
	interval       time.Duration
}

func NewInstrumentSweeperJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config, instanceID string) *InstrumentSweeperJob {
	interval := time.Duration(cfg.Business.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &InstrumentSweeperJob{
		db:             db,
		rdb:            rdb,
		instrumentRepo: repository.NewInstrumentRepository(db),
		cfg:            cfg,
		instanceID:     instanceID,
		stopCh:         make(chan struct{}),
		interval:       interval,
	}
}

func (j *InstrumentSweeperJob) Start(ctx context.Context) {
	log.Println("[InstrumentSweeper] 凭证过期巡检任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[InstrumentSweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[InstrumentSweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *InstrumentSweeperJob) Stop() {
	close(j.stopCh)
}

func (j *InstrumentSweeperJob) sweep(ctx context.Context) {
	jobLock := lock.NewJobLock(j.rdb, "instrument_sweeper", j.instanceID, time.Minute)
	acquired, err := jobLock.TryLock(ctx)
	if err != nil || !acquired {
		return
	}
	defer jobLock.Unlock(ctx)

	swept, err := j.instrumentRepo.SweepAllExpired(ctx, time.Now())
	if err != nil {
		log.Printf("[InstrumentSweeper] 巡检失败: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("[InstrumentSweeper] 本次标记 %d 张过期凭证", swept)
	}
}
