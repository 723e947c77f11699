package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	ZPay     ZPayConfig     `mapstructure:"zpay"`
	Internal InternalConfig `mapstructure:"internal"`
	Withdraw WithdrawConfig `mapstructure:"withdraw"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
}

// ZPayConfig Z-Pay 网关配置
type ZPayConfig struct {
	MerchantID string  `mapstructure:"merchant_id"`
	Secret     string  `mapstructure:"secret"`
	Gateway    string  `mapstructure:"gateway"`
	NotifyURL  string  `mapstructure:"notify_url"`
	ReturnURL  string  `mapstructure:"return_url"`
	SiteName   string  `mapstructure:"site_name"`
	MinAmount  float64 `mapstructure:"min_amount"`
}

// InternalConfig 内部机器人接口配置
type InternalConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// WithdrawConfig 提现策略
// 最低额与冷却期都是策略参数，冷却期配 0 即关闭
type WithdrawConfig struct {
	MinAmount     int64 `mapstructure:"min_amount"`
	CooldownHours int   `mapstructure:"cooldown_hours"`
}

// AdminConfig 管理员白名单与封禁名单，鉴权层按能力检查使用
type AdminConfig struct {
	DiscordIDs []string `mapstructure:"discord_ids"`
	BlockedIDs []string `mapstructure:"blocked_ids"`
}

type BusinessConfig struct {
	RechargeTimeoutMinutes int `mapstructure:"recharge_timeout_minutes"` // PENDING 充值单关单时限
	SweepIntervalMinutes   int `mapstructure:"sweep_interval_minutes"`   // 凭证过期巡检间隔
	MaxRetryCount          int `mapstructure:"max_retry_count"`          // 出站消息最大重试次数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// IsAdmin 判断是否管理员
func (c *Config) IsAdmin(discordID string) bool {
	for _, id := range c.Admin.DiscordIDs {
		if id == discordID {
			return true
		}
	}
	return false
}

// IsBlocked 判断是否被封禁
func (c *Config) IsBlocked(discordID string) bool {
	for _, id := range c.Admin.BlockedIDs {
		if id == discordID {
			return true
		}
	}
	return false
}
