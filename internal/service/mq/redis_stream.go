package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-provider/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisProducer 实现 Producer 接口
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer 创建 Redis 生产者
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{
		client: client,
		maxLen: 100000,
	}
}

// Publish 发送消息到 Redis Stream
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	// XADD <topic> MAXLEN ~ n * key <key> payload <payload>
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// RedisConsumer 实现 Consumer 接口
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
	}
}

// Subscribe 订阅 Redis Stream
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// 1. 创建 Consumer Group (如果不存在)
	// XGROUP CREATE <stream> <group> $ MKSTREAM
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}

	logger.Info("redis consumer subscribed", zap.String("topic", topic), zap.String("group", c.group))

	for {
		if ctx.Err() != nil {
			return nil
		}

		// 2. 阻塞读取消息
		// XREADGROUP GROUP <group> <consumer> BLOCK 2000 COUNT 10 STREAMS <topic> >
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue // 超时无消息
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("redis xreadgroup failed", zap.String("topic", topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// 3. 处理消息
		for _, stream := range streams {
			for _, x := range stream.Messages {
				payload, ok := x.Values["payload"].(string)
				if !ok {
					logger.Warn("redis message without payload", zap.String("id", x.ID))
					c.ack(ctx, topic, x.ID)
					continue
				}
				key, _ := x.Values["key"].(string)

				msg := &Message{
					ID:      x.ID,
					Topic:   topic,
					Key:     key,
					Payload: []byte(payload),
				}
				if err := handler(msg); err != nil {
					// 不 ACK，留在 PEL 中等待排查或重新认领
					logger.Error("redis handler failed", zap.String("id", x.ID), zap.Error(err))
					continue
				}
				c.ack(ctx, topic, x.ID)
			}
		}
	}
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("redis xack failed", zap.String("id", id), zap.Error(err))
	}
}

// Close 连接由调用方统一关闭
func (c *RedisConsumer) Close() error {
	return nil
}
