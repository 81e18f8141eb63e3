package signer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// DefaultBasePath 以太坊 BIP-44 路径，账户索引追加在末尾
const DefaultBasePath = "m/44'/60'/0'/0"

// ParsePath 解析派生路径
// 支持格式: m/44'/60'/0'/0 或 m/44h/60h/0h/0
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	segments := strings.Split(path, "/")
	indexes := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", segment, err)
		}
		index := uint32(val)
		if hardened {
			if index >= hdkeychain.HardenedKeyStart {
				return nil, fmt.Errorf("path segment %q out of range", segment)
			}
			index += hdkeychain.HardenedKeyStart
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}
