package chains

import (
	"fmt"
	"strconv"
	"strings"

	"wallet-provider/pkg/config"
	"wallet-provider/pkg/errno"
)

// Chain 支持的链
type Chain struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	RpcUrl string `json:"-"`
}

// HexID EIP-695 格式的 chainId
func (c Chain) HexID() string {
	return Hex(c.ID)
}

// Table 启动时从配置构建，之后只读
type Table struct {
	byID  map[uint64]Chain
	order []uint64
}

func New(list []config.ChainConfig) (*Table, error) {
	t := &Table{byID: make(map[uint64]Chain, len(list))}
	for _, c := range list {
		if c.ID == 0 {
			return nil, fmt.Errorf("chain %q: id must be positive", c.Name)
		}
		if _, dup := t.byID[c.ID]; dup {
			return nil, fmt.Errorf("chain %d configured twice", c.ID)
		}
		t.byID[c.ID] = Chain{ID: c.ID, Name: c.Name, Symbol: c.Symbol, RpcUrl: c.RpcUrl}
		t.order = append(t.order, c.ID)
	}
	return t, nil
}

func (t *Table) Get(id uint64) (Chain, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Lookup 与 Get 相同，不支持时返回 ChainNotSupported
func (t *Table) Lookup(id uint64) (Chain, error) {
	c, ok := t.byID[id]
	if !ok {
		return Chain{}, errno.ErrChainNotSupported.WithMessagef("Unrecognized chain ID %s. Try adding the chain using wallet_addEthereumChain first.", Hex(id))
	}
	return c, nil
}

func (t *Table) Supported(id uint64) bool {
	_, ok := t.byID[id]
	return ok
}

// List 按配置顺序返回
func (t *Table) List() []Chain {
	out := make([]Chain, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Hex 1 -> "0x1"
func Hex(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}

// ParseID 同时接受 "0x38" 和 "56"
func ParseID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errno.ErrInvalidParams.WithMessage("empty chainId")
	}
	var (
		id  uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		id, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil || id == 0 {
		return 0, errno.ErrInvalidParams.WithMessagef("invalid chainId %q", s)
	}
	return id, nil
}
