package mq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"wallet-provider/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConsumer 实现 Consumer 接口
type KafkaConsumer struct {
	brokers []string
	groupID string

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaConsumer 创建 Kafka 消费者
func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers: brokers,
		groupID: groupID,
	}
}

// Subscribe 订阅 Kafka 主题
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// GroupID: 同组内只有一个消费者能消费到同一分区的消息
	// StartOffset: 新组从最新位置开始，历史的中继结果由启动时的 watcher 恢复逻辑补齐
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.LastOffset,
	})
	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()
	defer reader.Close()

	logger.Info("kafka consumer subscribed", zap.String("topic", topic), zap.String("group", c.groupID))

	for {
		// 1. 读取消息 (阻塞直到有消息)
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("kafka fetch failed", zap.String("topic", topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		msg := &Message{
			ID:      strconv.Itoa(m.Partition) + "-" + strconv.FormatInt(m.Offset, 10),
			Topic:   topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}

		// 2. 调用业务处理函数
		// Kafka 不支持单条 Nack，处理失败只记录日志并提交 offset
		if err := handler(msg); err != nil {
			logger.Error("kafka handler failed", zap.String("id", msg.ID), zap.Error(err))
		}

		// 3. 手动提交 Offset
		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Error("kafka commit failed", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, r := range c.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.readers = nil
	return firstErr
}
