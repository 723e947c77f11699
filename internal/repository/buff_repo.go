package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

type BuffRepository struct {
	db *gorm.DB
}

func NewBuffRepository(db *gorm.DB) *BuffRepository {
	return &BuffRepository{db: db}
}

// Get 取某用户某类型的 buff 记录（不管是否已过期），不存在返回 nil
func (r *BuffRepository) Get(ctx context.Context, tx *gorm.DB, discordID, buffType string) (*model.Buff, error) {
	if tx == nil {
		tx = r.db
	}
	var buff model.Buff
	err := tx.WithContext(ctx).
		Where("discord_user_id = ? AND type = ?", discordID, buffType).
		First(&buff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &buff, nil
}

func (r *BuffRepository) Create(ctx context.Context, tx *gorm.DB, buff *model.Buff) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(buff).Error
}

// Update 覆盖写到期时间/幅度/剩余额度
func (r *BuffRepository) Update(ctx context.Context, tx *gorm.DB, buff *model.Buff) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Buff{}).
		Where("id = ?", buff.ID).
		Updates(map[string]interface{}{
			"magnitude":  buff.Magnitude,
			"remaining":  buff.Remaining,
			"expires_at": buff.ExpiresAt,
		}).Error
}

// ListActive 取某用户当前生效的全部 buff
func (r *BuffRepository) ListActive(ctx context.Context, discordID string, now time.Time) ([]*model.Buff, error) {
	var buffs []*model.Buff
	err := r.db.WithContext(ctx).
		Where("discord_user_id = ? AND expires_at > ?", discordID, now).
		Find(&buffs).Error
	return buffs, err
}
