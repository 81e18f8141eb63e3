package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

// Memory 进程内的 Producer + Consumer，未配置 Redis/Kafka 的单实例部署使用
// 每个主题的消息只投递给订阅时已存在的订阅者
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan *Message
	seq    atomic.Uint64
	closed bool
	buffer int
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 256
	}
	return &Memory{subs: make(map[string][]chan *Message), buffer: buffer}
}

// Publish 投递给所有订阅者；订阅者缓冲区满时阻塞直到 ctx 取消
func (m *Memory) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("memory mq closed")
	}
	subs := append([]chan *Message(nil), m.subs[topic]...)
	m.mu.Unlock()

	msg := &Message{
		ID:      strconv.FormatUint(m.seq.Add(1), 10),
		Topic:   topic,
		Key:     key,
		Payload: payload,
	}
	for _, ch := range subs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	ch := make(chan *Message, m.buffer)
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	defer m.unsubscribe(topic, ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := handler(msg); err != nil {
				logger.Error("memory mq handler failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
}

// Subscribers 当前订阅者数量
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}

func (m *Memory) unsubscribe(topic string, ch chan *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[topic]
	for i, c := range list {
		if c == ch {
			m.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
