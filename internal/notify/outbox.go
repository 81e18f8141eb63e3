package notify

import (
	"context"
	"encoding/json"
	"time"

	"wallet-provider/internal/model"
	"wallet-provider/internal/service/mq"
	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxNotifier 把通知写入本地消息表，进程重启也不会丢
type OutboxNotifier struct {
	db    *gorm.DB
	topic string
}

func NewOutboxNotifier(db *gorm.DB, topic string) *OutboxNotifier {
	return &OutboxNotifier{db: db, topic: topic}
}

func (n *OutboxNotifier) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("marshal event failed", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	msg := model.OutboxMessage{Topic: n.topic, Key: e.Origin, Payload: payload, Status: "PENDING"}
	if err := n.db.WithContext(ctx).Create(&msg).Error; err != nil {
		logger.Error("write outbox failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// OutboxRelay 负责将本地消息表的消息搬运到 MQ
type OutboxRelay struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
	batch    int
}

func NewOutboxRelay(db *gorm.DB, producer mq.Producer) *OutboxRelay {
	return &OutboxRelay{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond,
		batch:    50,
	}
}

func (s *OutboxRelay) Start(ctx context.Context) {
	logger.Info("outbox relay started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush 投递一批 PENDING 消息，返回成功条数
func (s *OutboxRelay) Flush(ctx context.Context) int {
	// 1. 按写入顺序取一批
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).Where("status = ?", "PENDING").Order("id").Limit(s.batch).Find(&messages).Error; err != nil {
		logger.Error("query outbox failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("publish outbox message failed", zap.Uint64("id", msg.ID), zap.Error(err))
			// 保持顺序，后面的消息下一轮再发
			break
		}

		// 3. 更新状态为 SENT
		// 只有发送成功了才更新状态 => At-least-once，消费方需做好幂等
		if err := s.db.WithContext(ctx).Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Error("mark outbox message sent failed", zap.Uint64("id", msg.ID), zap.Error(err))
			break
		}
		sent++
	}
	return sent
}
