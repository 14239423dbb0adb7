// Package health 依赖项健康检查（数据库、Redis、RabbitMQ）
package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/SherlockH0olms/Intellica/common/database"
	rediscommon "github.com/SherlockH0olms/Intellica/common/redis"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Status 单个依赖项的状态
type Status string

const (
	StatusOperational Status = "operational"
	StatusUnavailable Status = "unavailable"
	// StatusPending 未配置，不参与整体状态判断
	StatusPending Status = "pending"
)

const (
	OverallHealthy  = "healthy"
	OverallDegraded = "degraded"
)

// CheckFunc 返回 nil 表示依赖可用
type CheckFunc func(ctx context.Context) error

// Report /health 响应体
type Report struct {
	Status   string            `json:"status"`
	Services map[string]Status `json:"services"`
}

type check struct {
	name string
	fn   CheckFunc
}

// Checker 并发执行已注册的检查，每项受 timeout 限制
type Checker struct {
	checks  []check
	timeout time.Duration
	logger  *zap.Logger
}

func NewChecker(timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, logger: logger}
}

// Register 注册检查；fn 为 nil 时该项始终为 pending
func (c *Checker) Register(name string, fn CheckFunc) {
	c.checks = append(c.checks, check{name: name, fn: fn})
}

// Report 执行全部检查
func (c *Checker) Report(ctx context.Context) Report {
	report := Report{
		Status:   OverallHealthy,
		Services: map[string]Status{"api": StatusOperational},
	}

	results := make([]Status, len(c.checks))
	var wg sync.WaitGroup
	for i, ch := range c.checks {
		if ch.fn == nil {
			results[i] = StatusPending
			continue
		}
		wg.Add(1)
		go func(i int, ch check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if err := ch.fn(cctx); err != nil {
				c.logger.Warn("Health check failed", zap.String("service", ch.name), zap.Error(err))
				results[i] = StatusUnavailable
				return
			}
			results[i] = StatusOperational
		}(i, ch)
	}
	wg.Wait()

	for i, ch := range c.checks {
		report.Services[ch.name] = results[i]
		if results[i] == StatusUnavailable {
			report.Status = OverallDegraded
		}
	}
	return report
}

// PostgresCheck 通过 Ping 检查数据库
func PostgresCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}

// RedisCheck 通过 PING 检查 Redis
func RedisCheck(client *rediscommon.Client) CheckFunc {
	return func(ctx context.Context) error {
		return rediscommon.Ping(ctx, client)
	}
}

// RabbitMQCheck 调用管理 API 的 /api/overview
func RabbitMQCheck(client *resty.Client) CheckFunc {
	return func(ctx context.Context) error {
		resp, err := client.R().SetContext(ctx).Get("/api/overview")
		if err != nil {
			return fmt.Errorf("failed to call rabbitmq management api: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("rabbitmq management api returned %d", resp.StatusCode())
		}
		return nil
	}
}

// NewManagementClient 创建 RabbitMQ 管理 API 客户端
func NewManagementClient(baseURL, username, password string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(username, password).
		SetTimeout(2*time.Second).
		SetHeader("Accept", "application/json")
}
