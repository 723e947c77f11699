package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix  = "session:"
	defaultTTL = 7 * 24 * time.Hour

	// CookieName 前端登录时写入的会话 cookie
	CookieName = "session_id"
)

var ErrSessionNotFound = errors.New("会话不存在或已过期")

// Actor 会话绑定的登录身份
type Actor struct {
	DiscordID string `json:"discord_id"`
	Username  string `json:"username"`
}

// Store Redis 会话存储，登录态由 Discord OAuth 回调侧写入
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: defaultTTL}
}

// Get 按会话 ID 取登录身份
func (s *Store) Get(ctx context.Context, sessionID string) (*Actor, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := s.rdb.Get(ctx, keyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var actor Actor
	if err := json.Unmarshal([]byte(raw), &actor); err != nil {
		return nil, ErrSessionNotFound
	}
	if actor.DiscordID == "" {
		return nil, ErrSessionNotFound
	}
	return &actor, nil
}

// Set 写入会话并续期，登录回调与测试用
func (s *Store) Set(ctx context.Context, sessionID string, actor *Actor) error {
	raw, err := json.Marshal(actor)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+sessionID, raw, s.ttl).Err()
}

// Delete 注销会话
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, keyPrefix+sessionID).Err()
}
