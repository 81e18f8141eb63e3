package txmanager

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Stash 已构建未签名的交易；Take 只能成功一次
type Stash struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewStash ttl 内未被签名的交易自动丢弃
func NewStash(ttl time.Duration) *Stash {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Stash{c: gocache.New(ttl, ttl)}
}

func (s *Stash) Put(st *SigningTransaction) {
	s.c.SetDefault(st.ID, st)
}

// Take 取出并删除
func (s *Stash) Take(id string) (*SigningTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(id)
	if !ok {
		return nil, false
	}
	s.c.Delete(id)
	return v.(*SigningTransaction), true
}

func (s *Stash) Discard(id string) {
	s.mu.Lock()
	s.c.Delete(id)
	s.mu.Unlock()
}

func (s *Stash) Len() int {
	return s.c.ItemCount()
}
