package keystore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"wallet-provider/pkg/crypto_util"
	"wallet-provider/pkg/safe_random"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// ErrInvalidPassword 密码错误或文件被篡改
var ErrInvalidPassword = errors.New("invalid password or corrupted data (MAC mismatch)")

// Vault 是 keyring 的加密存储格式
// 参考 Ethereum Keystore V3 的结构，但存储的是助记词而不是单个私钥
type Vault struct {
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

type CryptoJSON struct {
	Cipher     string    `json:"cipher"`     // "aes-256-gcm"
	CipherText string    `json:"ciphertext"` // hex(nonce + ciphertext)
	KDF        string    `json:"kdf"`        // "scrypt"
	KDFParams  KDFParams `json:"kdfparams"`
	MAC        string    `json:"mac"` // hex(sha256(derivedKey + ciphertext))
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

// Params scrypt 参数
type Params struct {
	N int
	R int
	P int
}

var (
	// StandardParams 生产环境参数
	StandardParams = Params{N: 262144, R: 8, P: 1}
	// LightParams 测试 / 开发环境参数
	LightParams = Params{N: 4096, R: 8, P: 1}
)

const dkLen = 32

// EncryptMnemonic 使用密码加密助记词
func EncryptMnemonic(mnemonic, password string, params Params) (*Vault, error) {
	// 1. 生成随机 Salt
	salt, err := safe_random.GenerateRandomBytes(32)
	if err != nil {
		return nil, err
	}

	// 2. scrypt 派生密钥
	derivedKey, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, dkLen)
	if err != nil {
		return nil, err
	}

	// 3. AES-256-GCM 加密
	ciphertext, err := crypto_util.EncryptAESGCM(derivedKey, []byte(mnemonic))
	if err != nil {
		return nil, err
	}

	return &Vault{
		Version: 3,
		Id:      uuid.NewString(),
		Crypto: CryptoJSON{
			Cipher:     "aes-256-gcm",
			CipherText: hex.EncodeToString(ciphertext),
			KDF:        "scrypt",
			KDFParams: KDFParams{
				DKLen: dkLen,
				N:     params.N,
				R:     params.R,
				P:     params.P,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac(derivedKey, ciphertext)),
		},
	}, nil
}

// DecryptMnemonic 解密 Vault 获取助记词
func DecryptMnemonic(v *Vault, password string) (string, error) {
	if v.Crypto.KDF != "scrypt" || v.Crypto.Cipher != "aes-256-gcm" {
		return "", fmt.Errorf("unsupported vault: kdf=%s cipher=%s", v.Crypto.KDF, v.Crypto.Cipher)
	}

	// 1. 解析 Hex 参数
	salt, err := hex.DecodeString(v.Crypto.KDFParams.Salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	ciphertext, err := hex.DecodeString(v.Crypto.CipherText)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}
	expected, err := hex.DecodeString(v.Crypto.MAC)
	if err != nil {
		return "", fmt.Errorf("invalid mac: %w", err)
	}

	// 2. 重新派生密钥
	p := v.Crypto.KDFParams
	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return "", err
	}

	// 3. 验证 MAC
	if !hmac.Equal(expected, mac(derivedKey, ciphertext)) {
		return "", ErrInvalidPassword
	}

	// 4. 解密
	plaintext, err := crypto_util.DecryptAESGCM(derivedKey, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// SaveToFile 保存到文件
func (v *Vault) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadFromFile 从文件加载
func LoadFromFile(filename string) (*Vault, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var v Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vault %s: %w", filename, err)
	}
	return &v, nil
}

func mac(derivedKey, ciphertext []byte) []byte {
	h := sha256.New()
	h.Write(derivedKey)
	h.Write(ciphertext)
	return h.Sum(nil)
}
