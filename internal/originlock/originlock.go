package originlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wallet-provider/internal/approval"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"
	"wallet-provider/pkg/utils/lock"

	"go.uber.org/zap"
)

// Registry 按 (origin, kind) 互斥，防止同一个 dapp 同时发起多次解锁 / 连接协商
// 第二个请求立即失败 (AlreadyProcessing)，不排队
type Registry struct {
	locker lock.DistributedLock
	ttl    time.Duration

	acquired atomic.Int64
	released atomic.Int64
}

// New ttl 为锁的兜底过期时间，用于进程崩溃后 Redis 中残留的锁。
// ttl > 0 时持有期间按 ttl/3 续期，审批再久也不会过期；<=0 表示不过期
func New(locker lock.DistributedLock, ttl time.Duration) *Registry {
	return &Registry{locker: locker, ttl: ttl}
}

// Guard 持有的锁。Release 可以重复调用，只生效一次
type Guard struct {
	r     *Registry
	key   string
	token string
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func key(origin string, kind approval.Kind) string {
	return fmt.Sprintf("origin:%s:%s", kind, origin)
}

// Acquire 获取 (origin, kind) 的锁
func (r *Registry) Acquire(ctx context.Context, origin string, kind approval.Kind) (*Guard, error) {
	k := key(origin, kind)
	token, ok, err := r.locker.Acquire(ctx, k, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire origin lock: %w", err)
	}
	if !ok {
		monitor.OriginLockContention.WithLabelValues(string(kind)).Inc()
		logger.Info("origin negotiation already in progress", zap.String("origin", origin), zap.String("kind", string(kind)))
		return nil, errno.ErrAlreadyProcessing.WithMessagef("Request of type '%s' already pending for origin %s. Please wait.", kind, origin)
	}
	r.acquired.Add(1)
	g := &Guard{r: r, key: k, token: token, stop: make(chan struct{}), done: make(chan struct{})}
	if r.ttl > 0 {
		go g.keepAlive()
	} else {
		close(g.done)
	}
	return g, nil
}

func (g *Guard) keepAlive() {
	defer close(g.done)
	ticker := time.NewTicker(g.r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			ok, err := g.r.locker.Refresh(ctx, g.key, g.token, g.r.ttl)
			cancel()
			if err != nil {
				logger.Warn("refresh origin lock failed", zap.String("key", g.key), zap.Error(err))
				continue
			}
			if !ok {
				logger.Error("origin lock lost while held", zap.String("key", g.key))
				return
			}
		}
	}
}

// Release 释放锁，与请求是否成功无关
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		close(g.stop)
		<-g.done

		// 请求的 ctx 可能已经取消，释放使用独立的 ctx
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := g.r.locker.Release(ctx, g.key, g.token); err != nil {
			logger.Error("release origin lock failed", zap.String("key", g.key), zap.Error(err))
		}
		g.r.released.Add(1)
	})
}

// Stats 累计的获取 / 释放次数。请求全部结束后两者应相等
func (r *Registry) Stats() (acquired, released int64) {
	return r.acquired.Load(), r.released.Load()
}
