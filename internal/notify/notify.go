package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"wallet-provider/internal/service/mq"
	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

// Type 生命周期通知类型
type Type string

const (
	ApprovalRequired     Type = "approval_required"
	ApprovalResolved     Type = "approval_resolved"
	TransactionSubmitted Type = "transaction_submitted"
	TransactionFailed    Type = "transaction_failed"
	TransactionConfirmed Type = "transaction_confirmed"
)

// Event 发给外部消费者 (历史记录 UI / 数据分析) 的通知
type Event struct {
	Type   Type                   `json:"type"`
	Origin string                 `json:"origin,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	At     time.Time              `json:"at"`
}

// Notifier 通知是尽力而为的，失败只记录日志，不影响主流程
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// New 构造事件
func New(t Type, origin string, data map[string]interface{}) Event {
	return Event{Type: t, Origin: origin, Data: data, At: time.Now().UTC()}
}

// Nop 丢弃所有通知
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Multi 依次转发给多个 Notifier
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// MQNotifier 直接发布到 MQ
type MQNotifier struct {
	producer mq.Producer
	topic    string
}

func NewMQNotifier(producer mq.Producer, topic string) *MQNotifier {
	return &MQNotifier{producer: producer, topic: topic}
}

func (n *MQNotifier) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("marshal event failed", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	// 以 origin 作为分区键，同一 dapp 的事件保持有序
	if err := n.producer.Publish(ctx, n.topic, e.Origin, payload); err != nil {
		logger.Error("publish event failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// Recorder 在内存中记录通知，用于测试和调试
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events 返回副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count 统计某类通知的数量
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
