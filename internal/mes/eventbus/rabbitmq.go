package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

var ErrPublisherNotReady = errors.New("rabbitmq publisher not ready")

// RabbitMQConfig 生产者配置
type RabbitMQConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
}

// confirmChannel 发布所需的通道操作，*amqp.Channel 实现该接口
type confirmChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher 以 publisher confirm 模式向 topic exchange 投递领域事件
type RabbitMQPublisher struct {
	cfg     RabbitMQConfig
	logger  *zap.Logger
	mu      sync.Mutex
	conn    *amqp.Connection
	channel confirmChannel
	confirm chan amqp.Confirmation
	closed  chan *amqp.Error
	// seq 当前通道上最近一次发布的 delivery tag，confirm 模式下从 1 递增
	seq     uint64
	timeout time.Duration
	dial    func() error
}

// NewRabbitMQPublisher 连接 RabbitMQ 并声明 exchange
func NewRabbitMQPublisher(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}
	p := &RabbitMQPublisher{cfg: cfg, logger: logger, timeout: publishTimeout}
	p.dial = p.connect
	if err := p.dial(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	p.logger.Info("connecting to rabbitmq", zap.String("exchange", p.cfg.Exchange))
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.cfg.Exchange,     // name
		p.cfg.ExchangeType, // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.cfg.Exchange, err)
	}

	p.conn = conn
	p.channel = ch
	p.seq = 0
	p.confirm = ch.NotifyPublish(make(chan amqp.Confirmation, 16))
	p.closed = conn.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// ready 连接断开或通道被重置后在下一次发布时重连
func (p *RabbitMQPublisher) ready() error {
	if p.channel != nil {
		select {
		case amqpErr := <-p.closed:
			p.logger.Warn("rabbitmq connection closed", zap.Any("reason", amqpErr))
			p.reset()
		default:
			if p.conn == nil || !p.conn.IsClosed() {
				return nil
			}
			p.reset()
		}
	}
	if err := p.dial(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublisherNotReady, err)
	}
	return nil
}

// reset 丢弃当前通道和连接，未确认消息的迟到 ack 随旧通道一起作废
func (p *RabbitMQPublisher) reset() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}
	p.conn = nil
	p.channel = nil
	p.confirm = nil
	p.closed = nil
	p.seq = 0
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// 单通道 confirm 需要串行发布
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ready(); err != nil {
		return err
	}

	err = p.channel.Publish(
		p.cfg.Exchange,
		"mes."+event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.Type,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.seq++

	if err := p.waitConfirm(ctx, p.seq); err != nil {
		if !errors.Is(err, errNacked) {
			p.reset()
		}
		return err
	}
	return nil
}

var errNacked = errors.New("event published but not confirmed")

// waitConfirm 等待 tag 对应的确认，跳过更早消息的迟到确认
func (p *RabbitMQPublisher) waitConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-p.confirm:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if confirm.DeliveryTag < tag {
				p.logger.Debug("discarding stale publish confirm",
					zap.Uint64("tag", confirm.DeliveryTag), zap.Uint64("want", tag))
				continue
			}
			if !confirm.Ack {
				return errNacked
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("publish confirmation timeout")
		}
	}
}

func (p *RabbitMQPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
