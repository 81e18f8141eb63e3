package crypto_util

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// CalculateKeccak256 计算输入的 Keccak256 哈希值。
// 这是以太坊使用的哈希算法。
func CalculateKeccak256(data []byte) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// CalculateBlake3 计算输入的 Blake3 哈希值。
func CalculateBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3Digest 对多个字段计算一个摘要，用作缓存 key。
// 每个字段前写入长度，("ab","c") 与 ("a","bc") 得到不同摘要。
func Blake3Digest(parts ...[]byte) string {
	h := blake3.New(32, nil)
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
