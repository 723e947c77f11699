package job

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/infrastructure/lock"
	"github.com/yayaxhy/jinleeWeb/internal/infrastructure/mq"
	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

// OutboxSender 出站消息投递任务
// 账本事件在业务事务内落 outbox 表，这里异步批量投给 Kafka，
// 多副本部署时靠 Redis 任务锁保证同一轮只有一个实例在发
type OutboxSender struct {
	db         *gorm.DB
	rdb        *redis.Client
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	instanceID string
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, rdb *redis.Client, cfg *config.Config, instanceID string) *OutboxSender {
	return &OutboxSender{
		db:         db,
		rdb:        rdb,
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		instanceID: instanceID,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 账本事件投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	jobLock := lock.NewJobLock(s.rdb, "outbox_sender", s.instanceID, 30*time.Second)
	acquired, err := jobLock.TryLock(ctx)
	if err != nil {
		log.Printf("[OutboxSender] 获取任务锁失败: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := jobLock.Unlock(ctx); err != nil {
			log.Printf("[OutboxSender] 释放任务锁失败: %v", err)
		}
	}()

	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询待投递消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		} else {
			log.Printf("[OutboxSender] 账本事件已投递: id=%d, topic=%s, key=%s", msg.ID, msg.Topic, msg.MessageKey)
		}
		return
	}

	log.Printf("[OutboxSender] 投递失败: id=%d, err=%v", msg.ID, err)

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] 标记失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d", msg.ID)
		}
	}
}
