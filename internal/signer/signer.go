package signer

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signature 原始签名值，V 可能是 0/1、27/28 或 EIP-155 形式，由调用方归一化
type Signature struct {
	R *big.Int
	S *big.Int
	V *big.Int
}

// SignResult 二选一: 结构化签名，或者签名器已经自行广播并直接返回 hash
type SignResult struct {
	Signature *Signature
	Hash      *common.Hash
}

// Signer 持有或代理私钥的签名器 (本地 HD keyring / 硬件 / 远程签名)
type Signer interface {
	Accounts() []common.Address
	IsLocked() bool
	Unlock(password string) error
	Lock()

	SignTransaction(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (SignResult, error)
	// SignMessage EIP-191 personal_sign，返回 65 字节签名 (v = 27/28)
	SignMessage(ctx context.Context, account common.Address, msg []byte) ([]byte, error)
	SignTypedData(ctx context.Context, account common.Address, version TypedDataVersion, data json.RawMessage) ([]byte, error)

	// NeedsConfirmation 硬件签名器需要用户在设备上额外确认一次
	NeedsConfirmation(account common.Address) bool
}
