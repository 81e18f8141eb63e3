package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-provider/pkg/cache"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
)

// Session dapp 的连接授权，每个 origin 一个
type Session struct {
	Origin       string         `json:"origin"`
	Name         string         `json:"name"`
	Icon         string         `json:"icon"`
	ChainID      uint64         `json:"chain_id"`
	Account      common.Address `json:"account"`
	SignedBefore bool           `json:"signed_before"`
	ConnectedAt  time.Time      `json:"connected_at"`
}

// ErrNoSession origin 没有连接授权
var ErrNoSession = errno.ErrUnauthorized.WithMessage("origin is not connected")

func key(origin string) string {
	return "session:" + origin
}

// Store session 持久化在不透明 KV (pkg/cache) 中
type Store struct {
	kv cache.Cache
	mu sync.Mutex // 串行化进程内的读-改-写
}

func NewStore(kv cache.Cache) *Store {
	return &Store{kv: kv}
}

// Get 未连接时返回 nil, nil
func (s *Store) Get(ctx context.Context, origin string) (*Session, error) {
	var sess Session
	if err := s.kv.Get(ctx, key(origin), &sess); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, sess)
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	if sess.Origin == "" {
		return errors.New("session origin is empty")
	}
	if err := s.kv.Set(ctx, key(sess.Origin), sess, 0); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, key(origin))
}

// Update 读取、修改并写回 session；不存在时返回 ErrNoSession
func (s *Store) Update(ctx context.Context, origin string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.Get(ctx, origin)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
