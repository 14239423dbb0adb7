package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/SherlockH0olms/Intellica/common/config"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config intellica-backend（HTTP API）配置
// 依赖项的地址为空时，/health 中对应项报告 pending
type Config struct {
	HTTP     HTTPConfig
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	RabbitMQ RabbitMQConfig
	Health   struct {
		Timeout time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// ShutdownTimeout 优雅关闭等待进行中请求的上限
	ShutdownTimeout time.Duration
}

// RabbitMQConfig 管理 API 配置（健康检查用）
type RabbitMQConfig struct {
	ManagementURL string // 如 http://rabbitmq:15672
	Username      string
	Password      string
}

// IsConfigured 是否配置了管理 API 地址
func (c *RabbitMQConfig) IsConfigured() bool {
	return c.ManagementURL != ""
}

// Load 从环境变量加载配置；变量已设置但无法解析时返回 ErrInvalidConfig
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")

	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Database = "intellica"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 4
	cfg.Database.MaxIdle = 1
	if err := cfg.Database.LoadFromEnv("DB"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Redis.LoadFromEnv("REDIS"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.RabbitMQ.ManagementURL = getEnv("RABBITMQ_MANAGEMENT_URL", "")
	cfg.RabbitMQ.Username = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", "guest")

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"HTTP_READ_HEADER_TIMEOUT", &cfg.HTTP.ReadHeaderTimeout, 5 * time.Second},
		{"HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout, 5 * time.Second},
		{"HEALTH_TIMEOUT", &cfg.Health.Timeout, 2 * time.Second},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envDuration 接受 "500ms" 这类时长或整数秒
func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, s, err)
	}
	return d, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, aerr := strconv.Atoi(s)
		if aerr != nil {
			return 0, err
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
