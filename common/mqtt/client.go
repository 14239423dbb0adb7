package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SherlockH0olms/Intellica/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrConnectTimeout = errors.New("timed out waiting for MQTT handshake")
	ErrPublishTimeout = errors.New("timed out waiting for publish acknowledgment")
	ErrStopped        = errors.New("mqtt client stopped")
)

const (
	defaultConnectWait  = 2 * time.Second
	defaultDrainTimeout = 5 * time.Second
	disconnectQuiesce   = 250 // ms
)

// ConnectHandler 连接结果回调，code 为 CONNACK 返回码（0 表示成功）
type ConnectHandler func(code byte, reason string)

// DisconnectHandler 断开回调；主动断开时 err 为 nil
type DisconnectHandler func(err error)

// Options 客户端行为参数
type Options struct {
	// ConnectWait 等待握手完成的最长时间
	ConnectWait time.Duration
	// PublishTimeout 为 0 时发布后不等待 PUBACK（fire-and-continue）
	PublishTimeout time.Duration
	// DrainTimeout StopProcessing 等待未确认消息的最长时间
	DrainTimeout time.Duration

	OnConnect    ConnectHandler
	OnDisconnect DisconnectHandler
}

// Client MQTT客户端封装
// 只由发布循环所在的 goroutine 使用，不做并发保护
type Client struct {
	client   mqtt.Client
	config   *config.MQTTConfig
	opts     Options
	logger   *zap.Logger
	inflight []mqtt.Token
	stopped  bool
}

// NewClient 创建MQTT客户端（不会立即连接，连接由 Connect 完成）
func NewClient(cfg *config.MQTTConfig, opts Options, logger *zap.Logger) *Client {
	c := &Client{config: cfg, opts: withDefaults(opts), logger: logger}

	po := mqtt.NewClientOptions()
	po.AddBroker(cfg.BrokerURL())
	po.SetClientID(ClientID(cfg.ClientID))
	if cfg.Username != "" {
		po.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		po.SetPassword(cfg.Password)
	}
	if cfg.KeepAlive > 0 {
		po.SetKeepAlive(cfg.KeepAlive)
	}
	po.SetAutoReconnect(true)
	po.SetConnectRetry(false)
	po.SetCleanSession(true)
	po.SetOnConnectHandler(func(mqtt.Client) {
		c.notifyConnect(packets.Accepted)
	})
	po.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost", zap.Error(err))
		c.notifyDisconnect(err)
	})

	c.client = mqtt.NewClient(po)
	return c
}

func withDefaults(o Options) Options {
	if o.ConnectWait <= 0 {
		o.ConnectWait = defaultConnectWait
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = defaultDrainTimeout
	}
	return o
}

// ClientID 在前缀后追加 uuid，避免多个模拟器实例互相踢下线
func ClientID(prefix string) string {
	if prefix == "" {
		prefix = "factory-simulator"
	}
	return prefix + "-" + uuid.NewString()
}

// Connect 连接 Broker，最多等待 ConnectWait；失败不重试
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	timer := time.NewTimer(c.opts.ConnectWait)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w at %s after %s", ErrConnectTimeout, c.config.BrokerURL(), c.opts.ConnectWait)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		c.notifyConnect(returnCode(token))
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.config.BrokerURL(), err)
	}
	return nil
}

// Publish 发布消息（QoS 取自配置，默认 1 = at-least-once）
func (c *Client) Publish(topic string, payload []byte) error {
	if c.stopped {
		return ErrStopped
	}

	token := c.client.Publish(topic, c.config.QoS, false, payload)

	if c.opts.PublishTimeout > 0 {
		if !token.WaitTimeout(c.opts.PublishTimeout) {
			return fmt.Errorf("%w on topic %s", ErrPublishTimeout, topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
		return nil
	}

	// fire-and-continue: 只上报已经完成且失败的 token，其余交给后台确认
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
	default:
		c.track(token)
	}
	return nil
}

// track 记录未确认的 token，同时清理已完成的；后台失败的发布在这里记录日志
func (c *Client) track(token mqtt.Token) {
	pending := c.inflight[:0]
	for _, t := range c.inflight {
		select {
		case <-t.Done():
			if err := t.Error(); err != nil {
				c.logger.Warn("Publish failed", zap.Error(err))
			}
		default:
			pending = append(pending, t)
		}
	}
	c.inflight = append(pending, token)
}

// Pending 返回尚未确认的消息数
func (c *Client) Pending() int {
	n := 0
	for _, t := range c.inflight {
		select {
		case <-t.Done():
		default:
			n++
		}
	}
	return n
}

// StopProcessing 停止接受新的发布，并在 DrainTimeout 内等待未确认的消息
func (c *Client) StopProcessing() {
	c.stopped = true

	if n := c.Pending(); n > 0 {
		c.logger.Info("Waiting for in-flight messages", zap.Int("count", n), zap.Duration("timeout", c.opts.DrainTimeout))
	}

	deadline := time.Now().Add(c.opts.DrainTimeout)
	unacked := 0
	for _, t := range c.inflight {
		remaining := time.Until(deadline)
		if remaining <= 0 || !t.WaitTimeout(remaining) {
			unacked++
			continue
		}
		if err := t.Error(); err != nil {
			c.logger.Warn("Publish failed during drain", zap.Error(err))
		}
	}
	c.inflight = nil

	if unacked > 0 {
		c.logger.Warn("Messages left unacknowledged at shutdown", zap.Int("count", unacked))
	}
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
	c.notifyDisconnect(nil)
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) notifyConnect(code byte) {
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(code, ReturnCodeReason(code))
	}
}

func (c *Client) notifyDisconnect(err error) {
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect(err)
	}
}

func returnCode(token mqtt.Token) byte {
	if ct, ok := token.(*mqtt.ConnectToken); ok {
		return ct.ReturnCode()
	}
	if token.Error() != nil {
		return packets.ErrNetworkError
	}
	return packets.Accepted
}

// ReturnCodeReason 返回 CONNACK 返回码的可读名称
func ReturnCodeReason(code byte) string {
	if reason, ok := packets.ConnackReturnCodes[code]; ok {
		return reason
	}
	return fmt.Sprintf("unknown return code %d", code)
}
