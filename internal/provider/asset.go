package provider

import (
	"context"

	"wallet-provider/internal/registry"
	"wallet-provider/internal/session"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
)

// watchAssetParams EIP-747
type watchAssetParams struct {
	Type    string `json:"type"`
	Options struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
		Image    string `json:"image"`
	} `json:"options"`
}

func parseWatchAsset(raw []byte) (watchAssetParams, error) {
	var req watchAssetParams
	if err := decodeObject(raw, &req); err != nil {
		return req, err
	}
	if req.Type != "ERC20" {
		return req, errno.ErrInvalidParams.WithMessagef("asset type %q is not supported", req.Type)
	}
	if !common.IsHexAddress(req.Options.Address) {
		return req, errno.ErrInvalidParams.WithMessage("invalid token address")
	}
	if n := len(req.Options.Symbol); n == 0 || n > 11 {
		return req, errno.ErrInvalidParams.WithMessage("symbol must be 1 to 11 characters")
	}
	if req.Options.Decimals > 36 {
		return req, errno.ErrInvalidParams.WithMessage("decimals must be at most 36")
	}
	return req, nil
}

func (p *Provider) validateWatchAsset(_ context.Context, call registry.Call) (bool, error) {
	_, err := parseWatchAsset(call.Params)
	return false, err
}

func (p *Provider) watchAsset(ctx context.Context, f *flow) (any, error) {
	req, err := parseWatchAsset(f.req.Params)
	if err != nil {
		return nil, err
	}
	chainID, err := p.sessionChain(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	err = p.Assets.Add(ctx, p.State.Account(), chainID, session.Asset{
		Address:  common.HexToAddress(req.Options.Address),
		Symbol:   req.Options.Symbol,
		Decimals: req.Options.Decimals,
		Image:    req.Options.Image,
		Origin:   f.req.Origin,
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}
