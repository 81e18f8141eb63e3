package watcher

import (
	"context"
	"encoding/json"
	"errors"

	"wallet-provider/internal/service/mq"
	"wallet-provider/internal/store"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RelayEvent 中继通过 MQ 回推的解析结果
type RelayEvent struct {
	TrackingID string       `json:"tracking_id"`
	Hash       *common.Hash `json:"hash,omitempty"`
}

// Consumer 订阅中继事件，把 broadcast watcher 解析为 hash watcher
type Consumer struct {
	reg      *Registry
	store    *store.PendingStore
	consumer mq.Consumer
	topic    string
}

func NewConsumer(reg *Registry, st *store.PendingStore, consumer mq.Consumer, topic string) *Consumer {
	return &Consumer{reg: reg, store: st, consumer: consumer, topic: topic}
}

// Run 阻塞直到 ctx 取消
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("relay event consumer started", zap.String("topic", c.topic))
	return c.consumer.Subscribe(ctx, c.topic, func(msg *mq.Message) error {
		return c.Handle(ctx, msg.Payload)
	})
}

// Handle 处理单条消息；未知 tracking id 直接丢弃，其他错误返回以便重试
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var ev RelayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Warn("drop malformed relay event", zap.Error(err))
		return nil
	}
	if ev.TrackingID == "" || ev.Hash == nil {
		return nil
	}
	err := Resolve(ctx, c.reg, c.store, ev.TrackingID, *ev.Hash)
	if errors.Is(err, store.ErrTxNotFound) {
		logger.Warn("relay event for unknown tracking id", zap.String("tracking_id", ev.TrackingID))
		return nil
	}
	return err
}
