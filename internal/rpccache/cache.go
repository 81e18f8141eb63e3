package rpccache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"wallet-provider/pkg/crypto_util"
	"wallet-provider/pkg/monitor"

	gocache "github.com/patrickmn/go-cache"
)

// Key 缓存键：(address, method, params, chain)
type Key struct {
	Address string
	Method  string
	Params  json.RawMessage
	ChainID uint64
}

func (k Key) digest() string {
	return crypto_util.Blake3Digest(
		[]byte(strings.ToLower(k.Address)),
		[]byte(k.Method),
		compact(k.Params),
		[]byte(strconv.FormatUint(k.ChainID, 10)),
	)
}

// 去掉空白，使等价的参数得到同一个 key
func compact(p json.RawMessage) []byte {
	if len(p) == 0 {
		return []byte("[]")
	}
	var buf strings.Builder
	buf.Grow(len(p))
	inString, escaped := false, false
	for _, c := range string(p) {
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ' ' || c == '\n' || c == '\t' || c == '\r'):
			continue
		}
		buf.WriteRune(c)
	}
	return []byte(buf.String())
}

// 会改变状态或结果与时间强相关的方法，不能缓存
var uncacheable = map[string]bool{
	"eth_sendRawTransaction":          true,
	"eth_sendTransaction":             true,
	"eth_newFilter":                   true,
	"eth_newBlockFilter":              true,
	"eth_newPendingTransactionFilter": true,
	"eth_getFilterChanges":            true,
	"eth_uninstallFilter":             true,
	"eth_subscribe":                   true,
	"eth_unsubscribe":                 true,
}

// Cacheable 方法结果是否可以缓存
func Cacheable(method string) bool {
	return !uncacheable[method]
}

// call 缓存中保存的是调用本身：未完成时后来者等待 done，完成后直接读取结果
type call struct {
	done chan struct{}
	val  json.RawMessage
	err  error
}

// Cache 短 TTL 的读请求结果缓存
// 新鲜期内相同 key 的并发调用只会触发一次上游请求
type Cache struct {
	ttl         time.Duration
	callTimeout time.Duration
	c           *gocache.Cache
	mu          sync.Mutex
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Cache{
		ttl:         ttl,
		callTimeout: 30 * time.Second,
		c:           gocache.New(ttl, 4*ttl),
	}
}

// Get 返回已完成的缓存结果；调用尚在进行中时等待其完成
func (c *Cache) Get(ctx context.Context, key Key) (json.RawMessage, bool, error) {
	c.mu.Lock()
	v, found := c.c.Get(key.digest())
	c.mu.Unlock()
	if !found {
		return nil, false, nil
	}
	return c.wait(ctx, v.(*call))
}

// Set 直接写入结果
func (c *Cache) Set(key Key, value json.RawMessage) {
	if !Cacheable(key.Method) {
		return
	}
	cl := &call{done: make(chan struct{}), val: value}
	close(cl.done)
	c.mu.Lock()
	c.c.Set(key.digest(), cl, c.ttl)
	c.mu.Unlock()
}

// Do 命中则返回缓存结果，否则调用 fn 并缓存。错误不缓存
func (c *Cache) Do(ctx context.Context, key Key, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if !Cacheable(key.Method) {
		return fn(ctx)
	}

	d := key.digest()

	c.mu.Lock()
	if v, found := c.c.Get(d); found {
		c.mu.Unlock()
		cl := v.(*call)
		select {
		case <-cl.done:
			monitor.RpcCacheResults.WithLabelValues("hit").Inc()
		default:
			monitor.RpcCacheResults.WithLabelValues("shared").Inc()
		}
		val, _, err := c.wait(ctx, cl)
		return val, err
	}
	// 先放入进行中的调用再发请求，避免并发的相同请求重复打到上游。
	// 进行中的条目不过期，拿到结果后才开始计算新鲜期
	cl := &call{done: make(chan struct{})}
	c.c.Set(d, cl, gocache.NoExpiration)
	c.mu.Unlock()

	monitor.RpcCacheResults.WithLabelValues("miss").Inc()
	go c.run(ctx, d, cl, fn)

	val, _, err := c.wait(ctx, cl)
	return val, err
}

// run 上游调用不跟随发起者的 ctx 取消，每个调用方各自按自己的 ctx 停止等待
func (c *Cache) run(ctx context.Context, d string, cl *call, fn func(ctx context.Context) (json.RawMessage, error)) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()

	val, err := fn(callCtx)

	c.mu.Lock()
	cl.val, cl.err = val, err
	if cur, found := c.c.Get(d); found && cur.(*call) == cl {
		if err != nil {
			c.c.Delete(d)
		} else {
			c.c.Set(d, cl, c.ttl)
		}
	}
	c.mu.Unlock()
	close(cl.done)
}

// Len 缓存条目数 (含进行中)
func (c *Cache) Len() int {
	return c.c.ItemCount()
}

func (c *Cache) wait(ctx context.Context, cl *call) (json.RawMessage, bool, error) {
	select {
	case <-cl.done:
		return cl.val, true, cl.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
