package fanout

import (
	"context"
	"sync"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// Hub 进程内订阅（按 topic），用于本地订阅者和测试
// 没有订阅者时发布为空操作；订阅者缓冲满时丢弃该订阅者的这条消息
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch chan domain.LiveMessage
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*subscription]struct{}{}}
}

func (h *Hub) Name() string { return "hub" }

// Subscribe 订阅传感器实时通道，返回消息通道和取消函数
func (h *Hub) Subscribe(sensorID string, buffer int) (<-chan domain.LiveMessage, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{ch: make(chan domain.LiveMessage, buffer)}
	topic := Topic(sensorID)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = map[*subscription]struct{}{}
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[topic][sub]; ok {
				delete(h.subs[topic], sub)
				if len(h.subs[topic]) == 0 {
					delete(h.subs, topic)
				}
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish 非阻塞投递给所有订阅者
func (h *Hub) Publish(_ context.Context, msg domain.LiveMessage) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[Topic(msg.SensorID)] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers(sensorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[Topic(sensorID)])
}

// Close 关闭所有订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subs, topic)
	}
}
