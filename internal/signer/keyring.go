package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/keystore"
	"wallet-provider/pkg/logger"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

var (
	ErrLocked         = errno.ErrSignerUnavailable.WithMessage("keyring is locked")
	ErrUnknownAccount = errno.ErrInvalidParams.WithMessage("account is not managed by this keyring")
)

// GenerateMnemonic 生成 BIP-39 助记词，bitSize 128 (12 个单词) 或 256 (24 个单词)
func GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// HDKeyring 助记词加密保存在 vault 中，解锁后按 BIP-32 派生账户私钥
type HDKeyring struct {
	vault    *keystore.Vault
	basePath []uint32
	count    int

	mu       sync.RWMutex
	accounts []common.Address
	keys     map[common.Address]*ecdsa.PrivateKey
}

func NewHDKeyring(vault *keystore.Vault, basePath string, count int) (*HDKeyring, error) {
	if vault == nil {
		return nil, errors.New("keyring vault is nil")
	}
	if basePath == "" {
		basePath = DefaultBasePath
	}
	path, err := ParsePath(basePath)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	return &HDKeyring{vault: vault, basePath: path, count: count}, nil
}

// NewHDKeyringFromMnemonic 开发环境直接由助记词创建 (使用轻量 scrypt 参数加密)
func NewHDKeyringFromMnemonic(mnemonic, password, basePath string, count int) (*HDKeyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	vault, err := keystore.EncryptMnemonic(mnemonic, password, keystore.LightParams)
	if err != nil {
		return nil, err
	}
	return NewHDKeyring(vault, basePath, count)
}

func (k *HDKeyring) Accounts() []common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Address, len(k.accounts))
	copy(out, k.accounts)
	return out
}

func (k *HDKeyring) IsLocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys == nil
}

func (k *HDKeyring) Unlock(password string) error {
	// 1. 解密助记词
	mnemonic, err := keystore.DecryptMnemonic(k.vault, password)
	if err != nil {
		return err
	}
	// 2. 派生账户
	keys, accts, err := k.derive(mnemonic)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.keys = keys
	k.accounts = accts
	k.mu.Unlock()

	logger.Info("keyring unlocked", zap.Int("accounts", len(accts)))
	return nil
}

// Lock 丢弃内存中的私钥，账户列表保留
func (k *HDKeyring) Lock() {
	k.mu.Lock()
	k.keys = nil
	k.mu.Unlock()
	logger.Info("keyring locked")
}

func (k *HDKeyring) derive(mnemonic string) (map[common.Address]*ecdsa.PrivateKey, []common.Address, error) {
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, nil, fmt.Errorf("derive master key: %w", err)
	}

	base := master
	for _, index := range k.basePath {
		if base, err = base.Derive(index); err != nil {
			return nil, nil, fmt.Errorf("derive base path: %w", err)
		}
	}

	keys := make(map[common.Address]*ecdsa.PrivateKey, k.count)
	accts := make([]common.Address, 0, k.count)
	for i := 0; i < k.count; i++ {
		child, err := base.Derive(uint32(i))
		if err != nil {
			return nil, nil, fmt.Errorf("derive account %d: %w", i, err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, nil, err
		}
		key := priv.ToECDSA()
		addr := crypto.PubkeyToAddress(key.PublicKey)
		keys[addr] = key
		accts = append(accts, addr)
	}
	return keys, accts, nil
}

func (k *HDKeyring) key(account common.Address) (*ecdsa.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.keys == nil {
		return nil, ErrLocked
	}
	key, ok := k.keys[account]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return key, nil
}

func (k *HDKeyring) SignTransaction(_ context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (SignResult, error) {
	key, err := k.key(account)
	if err != nil {
		return SignResult{}, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return SignResult{}, fmt.Errorf("sign transaction: %w", err)
	}
	v, r, s := signed.RawSignatureValues()
	return SignResult{Signature: &Signature{R: r, S: s, V: v}}, nil
}

func (k *HDKeyring) SignMessage(_ context.Context, account common.Address, msg []byte) ([]byte, error) {
	key, err := k.key(account)
	if err != nil {
		return nil, err
	}
	return signHash(accounts.TextHash(msg), key)
}

func (k *HDKeyring) SignTypedData(_ context.Context, account common.Address, version TypedDataVersion, data json.RawMessage) ([]byte, error) {
	key, err := k.key(account)
	if err != nil {
		return nil, err
	}
	hash, err := TypedDataHash(version, data)
	if err != nil {
		return nil, err
	}
	return signHash(hash, key)
}

func (k *HDKeyring) NeedsConfirmation(common.Address) bool {
	return false
}

// signHash 返回 r || s || v，v 调整为 27/28
func signHash(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
