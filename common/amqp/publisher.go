package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SherlockH0olms/Intellica/common/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNacked         = errors.New("broker rejected message")
	ErrPublishTimeout = errors.New("timed out waiting for publisher confirm")
	ErrStopped        = errors.New("amqp publisher stopped")
	ErrNotConnected   = errors.New("amqp publisher not connected")
)

// DefaultExchange RabbitMQ MQTT 插件使用的交换机，MQTT 订阅者可以直接收到这里的消息
const DefaultExchange = "amq.topic"

const (
	defaultConnectWait  = 2 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// Options 与 mqtt.Options 对齐，便于两种传输方式互换
type Options struct {
	ConnectWait    time.Duration
	PublishTimeout time.Duration
	DrainTimeout   time.Duration
	KeepAlive      time.Duration

	OnConnect    func(code byte, reason string)
	OnDisconnect func(err error)
}

type confirmation interface {
	Done() <-chan struct{}
	Acked() bool
}

type publishChannel interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type confirmChannel struct {
	ch *amqp.Channel
}

func (c confirmChannel) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (c confirmChannel) Close() error { return c.ch.Close() }

// dialFunc 与 amqp.DialConfig 同签名，测试中替换
type dialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Publisher 通过 AMQP 0-9-1 发布遥测数据（publisher confirms = at-least-once）
type Publisher struct {
	config   *config.AMQPConfig
	opts     Options
	logger   *zap.Logger
	dial     dialFunc
	conn     *amqp.Connection
	channel  publishChannel
	inflight []confirmation
	stopped  bool
}

// NewPublisher 创建发布者（连接由 Connect 完成）
func NewPublisher(cfg *config.AMQPConfig, opts Options, logger *zap.Logger) *Publisher {
	if opts.ConnectWait <= 0 {
		opts.ConnectWait = defaultConnectWait
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	return &Publisher{config: cfg, opts: opts, logger: logger, dial: amqp.DialConfig}
}

// Connect 建立连接、打开 channel 并开启 confirm 模式
func (p *Publisher) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := p.dialContext(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.notifyConnect(connectCode(err), err.Error())
		}
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch, p.config.Exchange); err != nil {
		conn.Close()
		return err
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for e := range closed {
			if e != nil {
				p.logger.Warn("AMQP connection lost", zap.Error(e))
				p.notifyDisconnect(e)
			}
		}
	}()

	p.conn = conn
	p.channel = confirmChannel{ch: ch}
	p.notifyConnect(0, "Connection Accepted")
	return nil
}

type dialResult struct {
	conn *amqp.Connection
	err  error
}

// dialContext 拨号和 AMQP 握手最多 ConnectWait；ctx 取消时立即返回，迟到的连接在后台关闭
func (p *Publisher) dialContext(ctx context.Context) (*amqp.Connection, error) {
	done := make(chan dialResult, 1)
	go func() {
		conn, err := p.dial(p.config.URL, amqp.Config{
			Heartbeat: p.opts.KeepAlive,
			Dial:      amqp.DefaultDial(p.opts.ConnectWait),
		})
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// amq.* 为保留前缀，只能被动声明
func declareExchange(ch *amqp.Channel, exchange string) error {
	var err error
	if strings.HasPrefix(exchange, "amq.") {
		err = ch.ExchangeDeclarePassive(exchange, "topic", true, false, false, false, nil)
	} else {
		err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// RoutingKey 把 MQTT 主题转换为 amq.topic 路由键（与 RabbitMQ MQTT 插件一致：/ -> .）
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// Publish 发布一条 JSON 消息
func (p *Publisher) Publish(topic string, payload []byte) error {
	if p.stopped {
		return ErrStopped
	}
	if p.channel == nil {
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	ctx := context.Background()
	if p.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PublishTimeout)
		defer cancel()
	}

	conf, err := p.channel.publish(ctx, p.config.Exchange, RoutingKey(topic), msg)
	if err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	if p.opts.PublishTimeout > 0 {
		select {
		case <-conf.Done():
		case <-ctx.Done():
			return fmt.Errorf("%w on topic %s", ErrPublishTimeout, topic)
		}
		if !conf.Acked() {
			return fmt.Errorf("%w on topic %s", ErrNacked, topic)
		}
		return nil
	}

	select {
	case <-conf.Done():
		if !conf.Acked() {
			return fmt.Errorf("%w on topic %s", ErrNacked, topic)
		}
	default:
		p.track(conf)
	}
	return nil
}

// track 记录未确认的消息，同时清理已经确认的
func (p *Publisher) track(conf confirmation) {
	pending := p.inflight[:0]
	for _, c := range p.inflight {
		select {
		case <-c.Done():
			if !c.Acked() {
				p.logger.Warn("Message rejected by broker", zap.String("exchange", p.config.Exchange))
			}
		default:
			pending = append(pending, c)
		}
	}
	p.inflight = append(pending, conf)
}

// StopProcessing 等待未确认的消息（最多 DrainTimeout），之后拒绝新的发布
func (p *Publisher) StopProcessing() {
	p.stopped = true

	timer := time.NewTimer(p.opts.DrainTimeout)
	defer timer.Stop()

	unacked, nacked := 0, 0
	for i, c := range p.inflight {
		select {
		case <-c.Done():
			if !c.Acked() {
				nacked++
			}
		case <-timer.C:
			unacked += len(p.inflight) - i
			p.inflight = nil
			p.logger.Warn("Messages left unconfirmed at shutdown", zap.Int("count", unacked), zap.Int("nacked", nacked))
			return
		}
	}
	p.inflight = nil

	if nacked > 0 {
		p.logger.Warn("Messages rejected by broker during drain", zap.Int("nacked", nacked))
	}
}

// Disconnect 关闭 channel 和连接
func (p *Publisher) Disconnect() {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Debug("Channel close", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Debug("Connection close", zap.Error(err))
		}
	}
	p.notifyDisconnect(nil)
}

func (p *Publisher) notifyConnect(code byte, reason string) {
	if p.opts.OnConnect != nil {
		p.opts.OnConnect(code, reason)
	}
}

func (p *Publisher) notifyDisconnect(err error) {
	if p.opts.OnDisconnect != nil {
		p.opts.OnDisconnect(err)
	}
}

// connectCode 把 AMQP 错误映射到 MQTT CONNACK 风格的返回码，回调两边保持一致
func connectCode(err error) byte {
	if errors.Is(err, amqp.ErrCredentials) {
		return 4
	}
	var ae *amqp.Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case amqp.AccessRefused:
			return 5 // not authorized
		case amqp.NotAllowed:
			return 4 // bad username or password
		}
	}
	return 3 // server unavailable
}
