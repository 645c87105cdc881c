package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 领域事件类型，同时用作 RabbitMQ routing key 与 SSE event 名
const (
	EventMaterialReceived   = "material_received"
	EventOrderCreated       = "order_created"
	EventOrderAssigned      = "order_assigned"
	EventProductionReported = "production_reported"
	EventOrderCompleted     = "order_completed"
	EventMaterialShortage   = "material_shortage"
)

// Event 事务提交后发布的领域事件
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// NewEvent 生成带唯一ID的事件
func NewEvent(eventType string, payload interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

// Publisher 事件发布者。发布失败不影响已提交的业务事务
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi 依次投递给所有下游，单个下游失败只记录日志
type Multi struct {
	publishers []Publisher
	logger     *zap.Logger
}

func NewMulti(logger *zap.Logger, publishers ...Publisher) *Multi {
	var ps []Publisher
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Multi{publishers: ps, logger: logger}
}

// Add 追加下游
func (m *Multi) Add(p Publisher) {
	if p != nil {
		m.publishers = append(m.publishers, p)
	}
}

func (m *Multi) Publish(ctx context.Context, event Event) error {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			m.logger.Warn("publish event failed",
				zap.String("event", event.Type),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Recorder 记录所有事件，用于测试和调试
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events 按发布顺序返回副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types 按发布顺序返回事件类型
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
