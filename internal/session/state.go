package session

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// State 钱包全局的当前账户和当前链；用户随时可能修改，
// handler 在执行时需要重新读取而不是沿用 dispatch 时的值
type State struct {
	mu      sync.RWMutex
	account common.Address
	chainID uint64
}

func NewState(account common.Address, chainID uint64) *State {
	return &State{account: account, chainID: chainID}
}

func (s *State) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *State) ChainID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

func (s *State) SetAccount(account common.Address) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

func (s *State) SetChainID(chainID uint64) {
	s.mu.Lock()
	s.chainID = chainID
	s.mu.Unlock()
}

// InitAccount 仅当还没有当前账户时设置，返回最终生效的账户
func (s *State) InitAccount(account common.Address) common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == (common.Address{}) {
		s.account = account
	}
	return s.account
}
