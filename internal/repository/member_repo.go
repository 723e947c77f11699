package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yayaxhy/jinleeWeb/internal/model"
)

var (
	ErrMemberNotFound   = errors.New("会员不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrPeiwanNotFound   = errors.New("陪玩名片不存在")
)

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *MemberRepository) GetByDiscordID(ctx context.Context, tx *gorm.DB, discordID string) (*model.Member, error) {
	if tx == nil {
		tx = r.db
	}
	var member model.Member
	err := tx.WithContext(ctx).Where("discord_user_id = ?", discordID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetOrCreate 取会员，不存在则建零余额账户
// OnConflict DoNothing 保证并发首充时不会重复建号
func (r *MemberRepository) GetOrCreate(ctx context.Context, discordID string) (*model.Member, error) {
	member, err := r.GetByDiscordID(ctx, nil, discordID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	newMember := &model.Member{DiscordUserID: discordID}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discord_user_id"}},
			DoNothing: true,
		}).
		Create(newMember).Error
	if err != nil {
		return nil, err
	}

	return r.GetByDiscordID(ctx, nil, discordID)
}

// BalanceDelta 一次余额变动涉及的各子余额增量（负数为扣减）
type BalanceDelta struct {
	Total    decimal.Decimal
	Income   decimal.Decimal
	Recharge decimal.Decimal
	Spent    decimal.Decimal
}

// ApplyDelta 带版本号守卫的余额变动
// RowsAffected 为 0 说明版本号被并发改掉，调用方在事务内回滚重试。
// 这里只做增量写，余额充足性由调用方在同一事务内读到的快照校验
func (r *MemberRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, discordID string, delta BalanceDelta, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Member{}).
		Where("discord_user_id = ? AND version = ?", discordID, version).
		Updates(map[string]interface{}{
			"total_balance": gorm.Expr("total_balance + ?", delta.Total),
			"income":        gorm.Expr("income + ?", delta.Income),
			"recharge":      gorm.Expr("recharge + ?", delta.Recharge),
			"total_spent":   gorm.Expr("total_spent + ?", delta.Spent),
			"version":       gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// ============================================================
// 陪玩名片
// ============================================================

func (r *MemberRepository) GetPeiwanByDiscordID(ctx context.Context, tx *gorm.DB, discordID string) (*model.Peiwan, error) {
	if tx == nil {
		tx = r.db
	}
	var peiwan model.Peiwan
	err := tx.WithContext(ctx).Where("discord_user_id = ?", discordID).First(&peiwan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeiwanNotFound
		}
		return nil, err
	}
	return &peiwan, nil
}

func (r *MemberRepository) GetPeiwanByPeiwanID(ctx context.Context, peiwanID int) (*model.Peiwan, error) {
	var peiwan model.Peiwan
	err := r.db.WithContext(ctx).Where("peiwan_id = ?", peiwanID).First(&peiwan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeiwanNotFound
		}
		return nil, err
	}
	return &peiwan, nil
}

// MirrorPeiwanBalance 把会员余额镜像到名片上（充值到账后展示用）
func (r *MemberRepository) MirrorPeiwanBalance(ctx context.Context, tx *gorm.DB, discordID string, balance decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Peiwan{}).
		Where("discord_user_id = ?", discordID).
		Update("balance", balance).Error
}
