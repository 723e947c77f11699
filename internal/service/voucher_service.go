package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yayaxhy/jinleeWeb/internal/bot"
	"github.com/yayaxhy/jinleeWeb/internal/config"
	"github.com/yayaxhy/jinleeWeb/internal/model"
	"github.com/yayaxhy/jinleeWeb/internal/repository"
)

// 凭证核销的业务拒绝原因
var (
	ErrVoucherNotFound    = errors.New("记录不存在")
	ErrVoucherConsumed    = errors.New("已使用或已过期")
	ErrVoucherNotGift     = errors.New("非礼物代金券，无法赠送")
	ErrVoucherNotSelfUse  = errors.New("非自用券，无法自用")
	ErrVoucherUnavailable = errors.New("礼物券不可用或已过期")
	ErrTargetNotFound     = errors.New("未找到目标用户")
	ErrUnsupportedPrize   = errors.New("不支持的奖品")
)

// ============================================================
// 奖品名到行为的分类表
// ============================================================

type specialKind string

const (
	specialSimple     specialKind = "simple"
	specialCommission specialKind = "commission"
	specialFlow       specialKind = "flow"
	specialSpend      specialKind = "spend"
)

var simplePrizeNames = map[string]bool{
	"自定义礼物券": true,
	"自定义tag券": true,
}

// resolveSpecialVoucher 按奖品名分类特殊券
func resolveSpecialVoucher(prizeName string) (specialKind, bool) {
	if simplePrizeNames[prizeName] {
		return specialSimple, true
	}
	switch prizeName {
	case "抽成降1%券":
		return specialCommission, true
	case "双倍流水5000券":
		return specialFlow, true
	case "双倍消费5000券":
		return specialSpend, true
	}
	return "", false
}

var vanityCardNames = map[string]bool{
	"3位数靓号卡": true,
	"4位数靓号卡": true,
	"5位数靓号卡": true,
}

func isVanityCardPrize(name string) bool {
	return vanityCardNames[strings.TrimSpace(name)]
}

// 礼物代金券名到机器人侧礼物名的映射
var prizeToGift = map[string]string{
	"小蛋糕代金券":  "小蛋糕",
	"棒棒糖代金券":  "棒棒糖",
	"香水代金券":   "香水",
	"旋转木马代金券": "旋转木马",
	"南瓜车代金券":  "南瓜车",
	"留声机代金券":  "留声机",
	"一日冠75折券": "一日冠",
}

func giftNameForBot(prizeName string) string {
	if mapped, ok := prizeToGift[prizeName]; ok {
		return mapped
	}
	if trimmed := strings.TrimSuffix(prizeName, "代金券"); trimmed != "" {
		return trimmed
	}
	return "礼物"
}

// buff 策略：每次核销续期 30 天；双倍类每次叠加 5000 额度
var (
	buffExtension       = 30 * 24 * time.Hour
	flowQuota           = decimal.NewFromInt(5000)
	commissionMagnitude = decimal.NewFromInt(1)
)

// VoucherService 特殊凭证核销
//
// 统一顺序：先调机器人，机器人确认成功后才在本地核销凭证。
// 机器人失败时凭证保持未使用；机器人成功后本地核销输掉并发竞争的，
// 按冲突报给用户，留给对账处理
type VoucherService struct {
	db             *gorm.DB
	cfg            *config.Config
	instrumentRepo *repository.InstrumentRepository
	memberRepo     *repository.MemberRepository
	buffRepo       *repository.BuffRepository
	botClient      *bot.Client
}

func NewVoucherService(db *gorm.DB, cfg *config.Config, botClient *bot.Client) *VoucherService {
	return &VoucherService{
		db:             db,
		cfg:            cfg,
		instrumentRepo: repository.NewInstrumentRepository(db),
		memberRepo:     repository.NewMemberRepository(db),
		buffRepo:       repository.NewBuffRepository(db),
		botClient:      botClient,
	}
}

// resolveTarget 解析目标用户：先按 Discord ID，再按数字名片号
// 返回解析出的 Discord ID 与名片号（非名片目标时为 0）
func (s *VoucherService) resolveTarget(ctx context.Context, raw string) (string, int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", 0, ErrTargetNotFound
	}

	member, err := s.memberRepo.GetByDiscordID(ctx, nil, trimmed)
	if err == nil {
		return member.DiscordUserID, 0, nil
	}
	if !errors.Is(err, repository.ErrMemberNotFound) {
		return "", 0, err
	}

	if numeric, convErr := strconv.Atoi(trimmed); convErr == nil && numeric > 0 {
		peiwan, err := s.memberRepo.GetPeiwanByPeiwanID(ctx, numeric)
		if err == nil {
			return peiwan.DiscordUserID, numeric, nil
		}
		if !errors.Is(err, repository.ErrPeiwanNotFound) {
			return "", 0, err
		}
	}

	return "", 0, ErrTargetNotFound
}

// ============================================================
// 抽奖券：赠送 / 自用
// ============================================================

type LotteryUseMode string

const (
	LotteryModeGift    LotteryUseMode = "gift"
	LotteryModeSelfUse LotteryUseMode = "selfuse"
)

// UseLotteryRequest 抽奖券核销请求
type UseLotteryRequest struct {
	UserID    string
	LotteryID string
	Mode      LotteryUseMode
	Target    string // gift 模式的受赠方
}

// UseLottery 核销一张抽奖券（礼物赠送或自用）
func (s *VoucherService) UseLottery(ctx context.Context, req *UseLotteryRequest) error {
	draw, err := s.instrumentRepo.GetDrawByID(ctx, req.LotteryID)
	if err != nil {
		if errors.Is(err, repository.ErrDrawNotFound) {
			return ErrVoucherNotFound
		}
		return err
	}
	if draw.UserID != req.UserID {
		return ErrVoucherNotFound
	}
	now := time.Now()
	if draw.Status != model.LotteryStatusUnused || !draw.ExpiresAt.After(now) {
		return ErrVoucherConsumed
	}

	switch req.Mode {
	case LotteryModeGift:
		if draw.Prize.Type != model.LotteryPrizeTypeGift {
			return ErrVoucherNotGift
		}
		receiverID, _, err := s.resolveTarget(ctx, req.Target)
		if err != nil {
			return err
		}

		requestID := "GIFT:" + receiverID
		err = s.botClient.Post(ctx, bot.PathGift, map[string]interface{}{
			"giverId":    req.UserID,
			"receiverId": receiverID,
			"giftName":   giftNameForBot(draw.Prize.Name),
			"quantity":   1,
			"anonymous":  false,
			"lotteryId":  draw.ID,
			"requestId":  requestID,
		})
		if err != nil {
			return err
		}
		return s.markDrawUsed(ctx, draw.ID, requestID, now)

	case LotteryModeSelfUse:
		vanity := isVanityCardPrize(draw.Prize.Name)
		if draw.Prize.Type != model.LotteryPrizeTypeSelfUse && !vanity {
			return ErrVoucherNotSelfUse
		}

		if vanity {
			// 靓号改名由机器人执行，成功后本地才核销
			err := s.botClient.Post(ctx, bot.PathRenameCard, map[string]interface{}{
				"userId":    req.UserID,
				"voucherId": draw.ID,
			})
			if err != nil {
				return err
			}
		}
		return s.markDrawUsed(ctx, draw.ID, "SELFUSE", now)
	}

	return ErrUnsupportedPrize
}

func (s *VoucherService) markDrawUsed(ctx context.Context, drawID, requestID string, now time.Time) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.instrumentRepo.MarkDrawUsed(ctx, tx, drawID, requestID, now)
	})
	if errors.Is(err, repository.ErrInstrumentConsumed) {
		return ErrVoucherConsumed
	}
	return err
}

// ============================================================
// 特殊券（自定义礼物/tag、降抽成、双倍流水、双倍消费）
// ============================================================

// UseSpecialVoucherRequest 特殊券核销请求
type UseSpecialVoucherRequest struct {
	UserID    string
	PrizeName string
	Target    string // 降抽成/双倍类需要目标
	LotteryID string // 可选，指定券
}

// UseSpecialVoucher 按奖品名核销一张特殊券
func (s *VoucherService) UseSpecialVoucher(ctx context.Context, req *UseSpecialVoucherRequest) error {
	kind, ok := resolveSpecialVoucher(req.PrizeName)
	if !ok {
		return ErrUnsupportedPrize
	}

	now := time.Now()

	draw, err := s.instrumentRepo.FindRedeemableDraw(ctx, nil, req.UserID, req.LotteryID, []string{req.PrizeName}, now)
	if err != nil {
		return err
	}
	if draw == nil {
		return ErrVoucherUnavailable
	}

	if kind == specialSimple {
		path := bot.PathCustomTag
		if req.PrizeName == "自定义礼物券" {
			path = bot.PathCustomGift
		}
		err := s.botClient.Post(ctx, path, map[string]interface{}{
			"userId":    req.UserID,
			"voucherId": draw.ID,
		})
		if err != nil {
			return err
		}
		return s.markDrawUsed(ctx, draw.ID, "VOUCHER", now)
	}

	targetID, peiwanID, err := s.resolveTarget(ctx, req.Target)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"userId":          req.UserID,
		"targetDiscordId": targetID,
		"voucherId":       draw.ID,
	}
	if peiwanID > 0 {
		payload["peiwanId"] = peiwanID
	}

	var path string
	switch kind {
	case specialCommission:
		path = bot.PathCommissionMinus1
	case specialFlow:
		path = bot.PathDoubleFlow5000
	case specialSpend:
		path = bot.PathDoubleSpend5000
	default:
		return ErrUnsupportedPrize
	}

	if err := s.botClient.Post(ctx, path, payload); err != nil {
		return err
	}

	// 机器人已确认，本地核销 + buff 续期在一个事务内完成
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.instrumentRepo.MarkDrawUsed(ctx, tx, draw.ID, "VOUCHER:"+targetID, now); err != nil {
			return err
		}
		return s.upsertBuff(ctx, tx, targetID, kind, now)
	})
	if errors.Is(err, repository.ErrInstrumentConsumed) {
		return ErrVoucherConsumed
	}
	if err == nil {
		log.Printf("特殊券核销成功: userID=%s, prize=%s, target=%s", req.UserID, req.PrizeName, targetID)
	}
	return err
}

// upsertBuff buff 续期
// 新到期时间 = max(now, 原到期时间) + 30 天；
// 双倍类未过期时叠加剩余额度，已过期则从本次额度重新起算
func (s *VoucherService) upsertBuff(ctx context.Context, tx *gorm.DB, discordID string, kind specialKind, now time.Time) error {
	var buffType string
	magnitude := decimal.Zero
	addRemaining := decimal.Zero

	switch kind {
	case specialCommission:
		buffType = model.BuffTypeCommission
		magnitude = commissionMagnitude
	case specialFlow:
		buffType = model.BuffTypeFlow
		addRemaining = flowQuota
	case specialSpend:
		buffType = model.BuffTypeSpend
		addRemaining = flowQuota
	default:
		return fmt.Errorf("无 buff 语义的券类型: %s", kind)
	}

	existing, err := s.buffRepo.Get(ctx, tx, discordID, buffType)
	if err != nil {
		return err
	}

	if existing == nil {
		return s.buffRepo.Create(ctx, tx, &model.Buff{
			DiscordUserID: discordID,
			Type:          buffType,
			Magnitude:     magnitude,
			Remaining:     addRemaining,
			ExpiresAt:     now.Add(buffExtension),
		})
	}

	base := now
	active := existing.ExpiresAt.After(now)
	if active {
		base = existing.ExpiresAt
	}
	existing.ExpiresAt = base.Add(buffExtension)
	existing.Magnitude = magnitude
	if active {
		existing.Remaining = existing.Remaining.Add(addRemaining)
	} else {
		existing.Remaining = addRemaining
	}
	return s.buffRepo.Update(ctx, tx, existing)
}
