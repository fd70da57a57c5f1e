// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，只在 main 中读取，各组件通过构造函数接收所需的子配置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Concierge ConciergeConfig `mapstructure:"concierge"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
	// MigrateAll 为 true 时同时创建行程模块的表，仅用于本地开发
	MigrateAll bool `mapstructure:"migrate_all"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// RelayConfig 配置两跳转发：
// Endpoint/FunctionKey 供聊天会话调用内部转发端点，
// WebhookURL 是外部自动化工具地址，只存在于服务端（推荐用环境变量 CONCIERGE_RELAY_WEBHOOK_URL 注入）。
type RelayConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	FunctionKey    string `mapstructure:"function_key"`
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 返回单次转发的超时时间，未配置时为 30 秒。
func (c RelayConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConciergeConfig 存储聊天会话相关的配置。
type ConciergeConfig struct {
	SaveURL           string `mapstructure:"save_url"`
	Category          string `mapstructure:"category"`
	Language          string `mapstructure:"language"`
	DefaultTimezone   string `mapstructure:"default_timezone"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
}

// SessionTTL 返回会话空闲过期时间。
func (c ConciergeConfig) SessionTTL() time.Duration {
	if c.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Init 从指定路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量以 CONCIERGE_ 为前缀覆盖同名配置，例如 CONCIERGE_RELAY_WEBHOOK_URL。
func Init(configPath string) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("concierge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("relay.timeout_seconds", 30)
	// AutomaticEnv 只覆盖已知的键，webhook_url 需要显式注册
	v.SetDefault("relay.webhook_url", "")
	v.SetDefault("relay.function_key", "")
	v.SetDefault("concierge.category", "concierge")
	v.SetDefault("concierge.language", "pt-BR")
	v.SetDefault("concierge.default_timezone", "America/Sao_Paulo")
	v.SetDefault("concierge.session_ttl_minutes", 30)
	v.SetDefault("kafka.topic", "concierge.suggestions")
}
