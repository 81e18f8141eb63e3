package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/keystore"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var firstAccount = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

func unlockedKeyring(t *testing.T, count int) *HDKeyring {
	t.Helper()
	k, err := NewHDKeyringFromMnemonic(testMnemonic, "pass", "", count)
	require.NoError(t, err)
	require.True(t, k.IsLocked())
	require.NoError(t, k.Unlock("pass"))
	return k
}

func TestParsePath(t *testing.T) {
	idx, err := ParsePath("m/44'/60'/0'/0")
	require.NoError(t, err)
	assert.Equal(t, []uint32{
		44 + hdkeychain.HardenedKeyStart,
		60 + hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart,
		0,
	}, idx)

	idx, err = ParsePath("m/44h/1")
	require.NoError(t, err)
	assert.Equal(t, []uint32{44 + hdkeychain.HardenedKeyStart, 1}, idx)

	idx, err = ParsePath("m")
	require.NoError(t, err)
	assert.Empty(t, idx)

	_, err = ParsePath("m/44'/abc")
	assert.Error(t, err)
}

func TestKeyringDerivesKnownAccounts(t *testing.T) {
	k := unlockedKeyring(t, 2)

	accts := k.Accounts()
	require.Len(t, accts, 2)
	assert.Equal(t, firstAccount, accts[0])
	assert.NotEqual(t, accts[0], accts[1])
}

func TestKeyringLockAndPassword(t *testing.T) {
	vault, err := keystore.EncryptMnemonic(testMnemonic, "right", keystore.LightParams)
	require.NoError(t, err)
	k, err := NewHDKeyring(vault, DefaultBasePath, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, k.Unlock("wrong"), keystore.ErrInvalidPassword)
	assert.True(t, k.IsLocked())

	_, err = k.SignMessage(context.Background(), firstAccount, []byte("hi"))
	assert.ErrorIs(t, err, errno.ErrSignerUnavailable)

	require.NoError(t, k.Unlock("right"))
	assert.False(t, k.IsLocked())

	k.Lock()
	assert.True(t, k.IsLocked())
	assert.Equal(t, []common.Address{firstAccount}, k.Accounts(), "accounts survive lock")
}

func TestSignMessageRecoversSigner(t *testing.T) {
	k := unlockedKeyring(t, 1)
	msg := []byte("hello dapp")

	sig, err := k.SignMessage(context.Background(), firstAccount, msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, firstAccount, crypto.PubkeyToAddress(*pub))

	_, err = k.SignMessage(context.Background(), common.HexToAddress("0x01"), msg)
	assert.ErrorIs(t, err, errno.ErrInvalidParams)
}

func TestSignTransactionReturnsSignature(t *testing.T) {
	k := unlockedKeyring(t, 1)
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1e9)})

	res, err := k.SignTransaction(context.Background(), firstAccount, tx, chainID)
	require.NoError(t, err)
	require.NotNil(t, res.Signature)
	assert.Nil(t, res.Hash)

	signer := types.LatestSignerForChainID(chainID)
	sig := make([]byte, 65)
	res.Signature.R.FillBytes(sig[:32])
	res.Signature.S.FillBytes(sig[32:64])
	// EIP-155: v = chainId*2 + 35 + recid
	sig[64] = byte(res.Signature.V.Uint64() - 35 - 2*chainID.Uint64())

	signed, err := tx.WithSignature(signer, sig)
	require.NoError(t, err)
	from, err := types.Sender(signer, signed)
	require.NoError(t, err)
	assert.Equal(t, firstAccount, from)
}

const mailTypedData = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": 1,
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
    "to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
    "contents": "Hello, Bob!"
  }
}`

func TestTypedDataHashV4(t *testing.T) {
	hash, err := TypedDataHash(TypedDataV4, json.RawMessage(mailTypedData))
	require.NoError(t, err)
	assert.Equal(t, "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2", hexutil.Encode(hash))

	// 以字符串形式传入
	quoted, _ := json.Marshal(mailTypedData)
	again, err := TypedDataHash(TypedDataV3, quoted)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	td, err := ParseTypedData(json.RawMessage(mailTypedData))
	require.NoError(t, err)
	assert.Equal(t, int64(1), TypedDataChainID(td).Int64())
}

func TestLegacyTypedDataHash(t *testing.T) {
	fields := `[{"type":"string","name":"message","value":"Hi, Alice!"},{"type":"uint32","name":"value","value":42}]`
	h1, err := TypedDataHash(TypedDataV1, json.RawMessage(fields))
	require.NoError(t, err)
	require.Len(t, h1, 32)

	msg := crypto.Keccak256([]byte("Hi, Alice!"), []byte{0, 0, 0, 42})
	schema := crypto.Keccak256([]byte("string message"), []byte("uint32 value"))
	assert.Equal(t, crypto.Keccak256(schema, msg), h1)

	_, err = TypedDataHash(TypedDataV1, json.RawMessage(`[{"type":"tuple","name":"x","value":1}]`))
	assert.ErrorIs(t, err, errno.ErrInvalidParams)

	_, err = TypedDataHash(TypedDataV1, json.RawMessage(`[]`))
	assert.ErrorIs(t, err, errno.ErrInvalidParams)
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	k := unlockedKeyring(t, 1)
	sig, err := k.SignTypedData(context.Background(), firstAccount, TypedDataV4, json.RawMessage(mailTypedData))
	require.NoError(t, err)

	hash, _ := TypedDataHash(TypedDataV4, json.RawMessage(mailTypedData))
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, firstAccount, crypto.PubkeyToAddress(*pub))
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic(128)
	require.NoError(t, err)
	_, err = NewHDKeyringFromMnemonic(m, "p", "", 1)
	assert.NoError(t, err)

	_, err = NewHDKeyringFromMnemonic("not a mnemonic", "p", "", 1)
	assert.Error(t, err)
}
