package cache

import (
	"context"
	"errors"
	"time"

	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
// 多实例部署时 L1 只缓存很短时间，权威数据在 L2
type MultiLevelCache struct {
	local    Cache
	remote   Cache
	localTTL time.Duration
}

func NewMultiLevelCache(local, remote Cache, localTTL time.Duration) *MultiLevelCache {
	return &MultiLevelCache{
		local:    local,
		remote:   remote,
		localTTL: localTTL,
	}
}

func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// 先写 L2，成功后再写 L1，避免 L1 中出现 L2 不存在的数据
	if err := m.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := m.local.Set(ctx, key, value, m.l1TTL(ttl)); err != nil {
		logger.Warn("l1 cache set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}

	// 2. 查 L2
	err := m.remote.Get(ctx, key, target)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return ErrMiss
		}
		return err
	}

	// 3. L2 命中，回写 L1
	_ = m.local.Set(ctx, key, target, m.localTTL)
	return nil
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Delete(ctx, key)
}

func (m *MultiLevelCache) l1TTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < m.localTTL {
		return ttl
	}
	return m.localTTL
}
