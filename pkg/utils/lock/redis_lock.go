package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 只延长自己持有的锁
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock 基于 Redis SETNX 的实现，多个 provider 实例共享同一个 Redis 时使用
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	// SET key token NX PX ttl
	token := uuid.NewString()
	success, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !success {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLock) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	n, err := refreshScript.Run(ctx, l.client, []string{"lock:" + key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, token).Err()
}
