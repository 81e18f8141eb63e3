package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// Cache 定义通用缓存接口，session 等不透明 KV 状态都通过它持久化
type Cache interface {
	// Set 设置缓存，ttl 为 0 表示不过期
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get 获取缓存，并将结果 Unmarshal 到 target 中；未命中返回 ErrMiss
	Get(ctx context.Context, key string, target interface{}) error
	// Delete 删除缓存
	Delete(ctx context.Context, key string) error
}
