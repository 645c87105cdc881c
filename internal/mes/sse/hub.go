package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"go.uber.org/zap"
)

// Event 推送给看板的一条 SSE 消息
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client 一个已连接的看板，MachineID 非空时只接收该设备相关事件
type Client struct {
	ID        string
	UserID    string
	MachineID string
	Events    chan Event
}

// Hub 管理所有 SSE 连接
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

var _ eventbus.Publisher = (*Hub)(nil)

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 非阻塞投递，缓冲区满的连接丢弃本条
func (h *Hub) Broadcast(event Event, machineID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.MachineID != "" && machineID != "" && client.MachineID != machineID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// Publish 将领域事件转为 SSE 消息广播
func (h *Hub) Publish(_ context.Context, event eventbus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	h.Broadcast(Event{EventType: event.Type, Data: string(data)}, machineOf(event.Payload))
	return nil
}

// machineOf 取事件负载中的设备号
func machineOf(payload interface{}) string {
	if p, ok := payload.(interface{ EventMachineID() string }); ok {
		return p.EventMachineID()
	}
	return ""
}
