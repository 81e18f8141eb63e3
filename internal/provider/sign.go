package provider

import (
	"context"
	"encoding/json"
	"strings"

	"wallet-provider/internal/registry"
	"wallet-provider/internal/signer"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var errSignerMismatch = errno.ErrInvalidParams.WithMessage("signer address should be same as current address")

// personalArgs personal_sign 的参数是 [data, address]，部分 dapp 会传反
func personalArgs(params json.RawMessage) (json.RawMessage, common.Address, error) {
	list, err := paramList(params, 2)
	if err != nil {
		return nil, common.Address{}, err
	}
	data, addr := list[0], list[1]
	if isAddressParam(data) && !isAddressParam(addr) {
		data, addr = addr, data
	}
	account, err := paramAddress(addr)
	if err != nil {
		return nil, common.Address{}, err
	}
	return data, account, nil
}

func (p *Provider) validatePersonalSign(_ context.Context, call registry.Call) (bool, error) {
	_, account, err := personalArgs(call.Params)
	if err != nil {
		return false, err
	}
	if account != call.Account {
		return false, errSignerMismatch
	}
	return false, nil
}

// messageBytes 0x 开头且是合法 hex 时按字节签名，否则按 UTF-8 文本签名
func messageBytes(raw json.RawMessage) ([]byte, error) {
	s, err := paramString(raw)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return b, nil
		}
	}
	return []byte(s), nil
}

func (p *Provider) personalSign(ctx context.Context, f *flow) (any, error) {
	data, account, err := personalArgs(f.req.Params)
	if err != nil {
		return nil, err
	}
	// 审批期间用户可能切换了账户
	if account != p.State.Account() {
		return nil, errSignerMismatch
	}
	msg, err := messageBytes(data)
	if err != nil {
		return nil, err
	}
	sig, err := p.Signer.SignMessage(ctx, account, msg)
	if err != nil {
		return nil, err
	}
	p.markSigned(ctx, f.req.Origin)
	return hexutil.Encode(sig), nil
}

// typedArgs v1 的参数是 [data, address]，v3 / v4 是 [address, data]
func typedArgs(method string, params json.RawMessage) (signer.TypedDataVersion, common.Address, json.RawMessage, error) {
	list, err := paramList(params, 2)
	if err != nil {
		return "", common.Address{}, nil, err
	}

	version := signer.TypedDataV1
	data, addr := list[0], list[1]
	switch method {
	case "eth_signTypedData_v3":
		version = signer.TypedDataV3
		data, addr = list[1], list[0]
	case "eth_signTypedData_v4":
		version = signer.TypedDataV4
		data, addr = list[1], list[0]
	}

	account, err := paramAddress(addr)
	if err != nil {
		return "", common.Address{}, nil, err
	}
	return version, account, data, nil
}

func (p *Provider) validateTypedData(_ context.Context, call registry.Call) (bool, error) {
	version, account, data, err := typedArgs(call.Method, call.Params)
	if err != nil {
		return false, err
	}
	if account != call.Account {
		return false, errSignerMismatch
	}
	if version == signer.TypedDataV1 {
		return false, nil
	}

	td, err := signer.ParseTypedData(data)
	if err != nil {
		return false, err
	}
	if cid := signer.TypedDataChainID(td); cid != nil && (!cid.IsUint64() || cid.Uint64() != call.ChainID) {
		return false, errno.ErrInvalidParams.WithMessage("chainId should be same as current chainId")
	}
	return false, nil
}

func (p *Provider) signTypedData(ctx context.Context, f *flow) (any, error) {
	version, account, data, err := typedArgs(f.req.Method, f.req.Params)
	if err != nil {
		return nil, err
	}
	if account != p.State.Account() {
		return nil, errSignerMismatch
	}
	sig, err := p.Signer.SignTypedData(ctx, account, version, data)
	if err != nil {
		return nil, err
	}
	p.markSigned(ctx, f.req.Origin)
	return hexutil.Encode(sig), nil
}
