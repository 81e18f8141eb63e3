package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"wallet-provider/pkg/cache"

	"github.com/ethereum/go-ethereum/common"
)

// Asset wallet_watchAsset 添加的 ERC20 代币
type Asset struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Image    string         `json:"image,omitempty"`
	Origin   string         `json:"origin"`
}

// AssetStore 按 (account, chain) 保存用户关注的代币
type AssetStore struct {
	kv cache.Cache
	mu sync.Mutex
}

func NewAssetStore(kv cache.Cache) *AssetStore {
	return &AssetStore{kv: kv}
}

func assetKey(account common.Address, chainID uint64) string {
	return "assets:" + strings.ToLower(account.Hex()) + ":" + strconv.FormatUint(chainID, 10)
}

func (s *AssetStore) List(ctx context.Context, account common.Address, chainID uint64) ([]Asset, error) {
	var assets []Asset
	if err := s.kv.Get(ctx, assetKey(account, chainID), &assets); err != nil && !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}
	return assets, nil
}

// Add 重复添加同一合约地址时覆盖原记录
func (s *AssetStore) Add(ctx context.Context, account common.Address, chainID uint64, asset Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets, err := s.List(ctx, account, chainID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range assets {
		if assets[i].Address == asset.Address {
			assets[i] = asset
			replaced = true
		}
	}
	if !replaced {
		assets = append(assets, asset)
	}
	return s.kv.Set(ctx, assetKey(account, chainID), assets, 0)
}
