package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SherlockH0olms/Intellica/simulator/internal/config"
	"github.com/SherlockH0olms/Intellica/simulator/internal/machine"
	"github.com/SherlockH0olms/Intellica/simulator/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrNotConnected   = errors.New("simulator not connected")
	ErrAlreadyRunning = errors.New("simulator already running")
	ErrStopped        = errors.New("simulator stopped")
)

// Transport 消息代理的发布端（MQTT 或 AMQP）
type Transport interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte) error
	StopProcessing()
	Disconnect()
}

// State 模拟器生命周期
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options 构造参数
type Options struct {
	// OnPublishError config.OnPublishErrorAbort（默认）或 config.OnPublishErrorSkip
	OnPublishError string
	// Metrics 可为 nil
	Metrics *metrics.Recorder
}

// FactorySimulator 按固定间隔为每台设备生成并发布一条采样
// 只在调用 Run 的 goroutine 中使用
type FactorySimulator struct {
	transport Transport
	machines  []machine.Machine
	policy    string
	metrics   *metrics.Recorder
	logger    *zap.Logger

	state    State
	stopOnce sync.Once
}

// NewFactorySimulator 创建模拟器
func NewFactorySimulator(transport Transport, machines []machine.Machine, opts Options, logger *zap.Logger) *FactorySimulator {
	policy := opts.OnPublishError
	if policy == "" {
		policy = config.OnPublishErrorAbort
	}
	return &FactorySimulator{
		transport: transport,
		machines:  machines,
		policy:    policy,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// State 当前状态
func (s *FactorySimulator) State() State {
	return s.state
}

// Connect 连接消息代理；失败不重试
func (s *FactorySimulator) Connect(ctx context.Context) error {
	switch s.state {
	case StateUninitialized:
	case StateStopped:
		return ErrStopped
	default:
		return nil
	}

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	s.state = StateConnected
	return nil
}

// Run 运行到 duration 结束或 ctx 被取消，返回前总会执行一次 Stop
// ctx 取消属于正常结束，返回 nil；发布失败按 OnPublishError 处理
func (s *FactorySimulator) Run(ctx context.Context, duration, interval time.Duration) error {
	switch s.state {
	case StateUninitialized:
		return ErrNotConnected
	case StateRunning:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrStopped
	}
	defer s.Stop()

	s.logger.Info("Starting simulation",
		zap.Int("machines", len(s.machines)),
		zap.Duration("duration", duration),
		zap.Duration("interval", interval),
		zap.String("on_publish_error", s.policy),
	)

	end := time.Now().Add(duration)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for time.Now().Before(end) {
		if ctx.Err() != nil {
			s.logger.Info("Simulation interrupted")
			return nil
		}

		s.state = StateRunning
		if err := s.tick(); err != nil {
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)

		select {
		case <-ctx.Done():
			s.logger.Info("Simulation interrupted")
			return nil
		case <-timer.C:
		}
	}
	return nil
}

// tick 依次为每台设备发布一条采样
func (s *FactorySimulator) tick() error {
	start := time.Now()
	defer func() { s.metrics.ObserveTick(time.Since(start)) }()

	for _, m := range s.machines {
		sample := m.Generate()
		machineType := string(m.Type())

		payload, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("failed to encode sample for %s: %w", m.ID(), err)
		}

		topic := machine.Topic(m)
		if err := s.transport.Publish(topic, payload); err != nil {
			s.metrics.PublishFailed(machineType)
			if s.policy == config.OnPublishErrorSkip {
				s.logger.Warn("Publish failed, skipping sample",
					zap.String("machine_id", m.ID()),
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}
			return fmt.Errorf("failed to publish sample for %s: %w", m.ID(), err)
		}

		s.metrics.SamplePublished(machineType, sample.Anomalous)
		s.logger.Info("Published data",
			zap.String("machine_id", m.ID()),
			zap.String("topic", topic),
			zap.Bool("anomaly", sample.Anomalous),
		)
	}
	return nil
}

// Stop 停止发布并断开连接，只执行一次；未连接时不会触碰 Transport
func (s *FactorySimulator) Stop() {
	s.stopOnce.Do(func() {
		if s.state == StateConnected || s.state == StateRunning {
			s.transport.StopProcessing()
			s.transport.Disconnect()
		}
		s.state = StateStopped
		s.logger.Info("Simulation ended")
	})
}
