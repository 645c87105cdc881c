package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// fakeChannel 按发布顺序分配 delivery tag，ack 为 true 时立即回确认
type fakeChannel struct {
	confirm   chan amqp.Confirmation
	ack       bool
	tag       uint64
	published int
	closed    bool
}

func (f *fakeChannel) Publish(_, _ string, _, _ bool, _ amqp.Publishing) error {
	f.tag++
	f.published++
	if f.ack {
		f.confirm <- amqp.Confirmation{DeliveryTag: f.tag, Ack: true}
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *RabbitMQPublisher {
	p := &RabbitMQPublisher{
		cfg:     RabbitMQConfig{Exchange: "mes.events"},
		logger:  zap.NewNop(),
		timeout: 20 * time.Millisecond,
	}
	attach(p, ch)
	return p
}

func attach(p *RabbitMQPublisher, ch *fakeChannel) {
	p.channel = ch
	p.confirm = ch.confirm
	p.seq = ch.tag
}

func TestRabbitMQPublish_SkipsStaleConfirm(t *testing.T) {
	ch := &fakeChannel{confirm: make(chan amqp.Confirmation, 4), ack: true, tag: 1}
	p := newTestPublisher(ch)
	// 上一条消息超时后才到达的确认
	ch.confirm <- amqp.Confirmation{DeliveryTag: 1, Ack: true}

	if err := p.Publish(context.Background(), NewEvent(EventOrderCreated, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.confirm) != 0 {
		t.Errorf("%d confirms left in buffer", len(ch.confirm))
	}
	if p.seq != 2 {
		t.Errorf("seq = %d, want 2", p.seq)
	}

	if err := p.Publish(context.Background(), NewEvent(EventOrderAssigned, nil)); err != nil {
		t.Fatalf("second publish: %v", err)
	}
}

func TestRabbitMQPublish_StaleNackDoesNotFailCurrent(t *testing.T) {
	ch := &fakeChannel{confirm: make(chan amqp.Confirmation, 4), ack: true, tag: 3}
	p := newTestPublisher(ch)
	ch.confirm <- amqp.Confirmation{DeliveryTag: 2, Ack: false}
	ch.confirm <- amqp.Confirmation{DeliveryTag: 3, Ack: true}

	if err := p.Publish(context.Background(), NewEvent(EventOrderCreated, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestRabbitMQPublish_TimeoutResetsChannel(t *testing.T) {
	silent := &fakeChannel{confirm: make(chan amqp.Confirmation, 4)}
	p := newTestPublisher(silent)

	fresh := &fakeChannel{confirm: make(chan amqp.Confirmation, 4), ack: true}
	dials := 0
	p.dial = func() error {
		dials++
		attach(p, fresh)
		return nil
	}

	if err := p.Publish(context.Background(), NewEvent(EventOrderCreated, nil)); err == nil {
		t.Fatal("expected confirmation timeout")
	}
	if !silent.closed || p.channel != nil {
		t.Fatal("timed out channel must be dropped")
	}

	// 迟到的确认落在已丢弃的通道上，不影响新通道
	silent.confirm <- amqp.Confirmation{DeliveryTag: 1, Ack: true}

	if err := p.Publish(context.Background(), NewEvent(EventOrderAssigned, nil)); err != nil {
		t.Fatalf("publish after reset: %v", err)
	}
	if dials != 1 || fresh.published != 1 {
		t.Errorf("dials = %d, published on fresh channel = %d", dials, fresh.published)
	}
}

func TestRabbitMQPublish_NackKeepsChannel(t *testing.T) {
	ch := &fakeChannel{confirm: make(chan amqp.Confirmation, 4)}
	p := newTestPublisher(ch)
	ch.confirm <- amqp.Confirmation{DeliveryTag: 1, Ack: false}

	err := p.Publish(context.Background(), NewEvent(EventOrderCreated, nil))
	if !errors.Is(err, errNacked) {
		t.Fatalf("expected nack error, got %v", err)
	}
	if ch.closed || p.channel == nil {
		t.Error("nack must not drop the channel")
	}
}
