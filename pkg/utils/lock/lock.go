package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DistributedLock 定义锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁，不阻塞等待
	// key: 锁的唯一标识
	// ttl: 锁的过期时间，<=0 表示不过期
	// 返回: (持有者 token, 是否成功, error)
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Refresh 延长自己持有的锁，锁已易主或不存在时返回 false
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release 只释放 token 对应的锁，锁不存在或已易主时不报错
	Release(ctx context.Context, key, token string) error
}

type memoryEntry struct {
	token string
	exp   time.Time // 零值表示不过期
}

// MemoryLock 进程内实现，单实例部署时使用
type MemoryLock struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		held:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[key]; ok && l.alive(e) {
		return "", false, nil
	}

	e := memoryEntry{token: uuid.NewString(), exp: l.expiry(ttl)}
	l.held[key] = e
	return e.token, true, nil
}

func (l *MemoryLock) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[key]
	if !ok || e.token != token || !l.alive(e) {
		return false, nil
	}
	e.exp = l.expiry(ttl)
	l.held[key] = e
	return true, nil
}

func (l *MemoryLock) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	if e, ok := l.held[key]; ok && e.token == token {
		delete(l.held, key)
	}
	l.mu.Unlock()
	return nil
}

// Held 返回当前持有的锁数量 (含未清理的过期项)
func (l *MemoryLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func (l *MemoryLock) alive(e memoryEntry) bool {
	return e.exp.IsZero() || l.clock().Before(e.exp)
}

func (l *MemoryLock) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return l.clock().Add(ttl)
}
