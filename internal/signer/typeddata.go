package signer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type TypedDataVersion string

const (
	TypedDataV1 TypedDataVersion = "v1"
	TypedDataV3 TypedDataVersion = "v3"
	TypedDataV4 TypedDataVersion = "v4"
)

// LegacyTypedField eth_signTypedData (v1) 的数组元素
type LegacyTypedField struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// unquote dapp 经常把 typed data 作为 JSON 字符串传入
func unquote(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return json.RawMessage(s)
		}
	}
	return raw
}

// ParseTypedData 解析 v3 / v4 typed data
func ParseTypedData(raw json.RawMessage) (apitypes.TypedData, error) {
	var td apitypes.TypedData
	if err := json.Unmarshal(unquote(raw), &td); err != nil {
		return td, errno.ErrInvalidParams.WithMessagef("invalid typed data: %v", err)
	}
	return td, nil
}

// TypedDataChainID domain 中声明的 chainId，未声明时返回 nil
func TypedDataChainID(td apitypes.TypedData) *big.Int {
	if td.Domain.ChainId == nil {
		return nil
	}
	return (*big.Int)(td.Domain.ChainId)
}

// TypedDataHash 计算待签名的摘要
func TypedDataHash(version TypedDataVersion, raw json.RawMessage) ([]byte, error) {
	switch version {
	case TypedDataV1:
		var fields []LegacyTypedField
		if err := json.Unmarshal(unquote(raw), &fields); err != nil {
			return nil, errno.ErrInvalidParams.WithMessagef("invalid typed data: %v", err)
		}
		return LegacyTypedDataHash(fields)
	case TypedDataV3, TypedDataV4:
		td, err := ParseTypedData(raw)
		if err != nil {
			return nil, err
		}
		hash, _, err := apitypes.TypedDataAndHash(td)
		if err != nil {
			return nil, errno.ErrInvalidParams.WithMessagef("invalid typed data: %v", err)
		}
		return hash, nil
	default:
		return nil, errno.ErrInvalidParams.WithMessagef("unsupported typed data version %q", version)
	}
}

// LegacyTypedDataHash keccak256(keccak256(schema) || keccak256(packed values))
func LegacyTypedDataHash(fields []LegacyTypedField) ([]byte, error) {
	if len(fields) == 0 {
		return nil, errno.ErrInvalidParams.WithMessage("typed data is empty")
	}

	var schema, values []byte
	for _, f := range fields {
		schema = append(schema, []byte(f.Type+" "+f.Name)...)
		packed, err := packLegacy(f.Type, f.Value)
		if err != nil {
			return nil, errno.ErrInvalidParams.WithMessagef("field %q: %v", f.Name, err)
		}
		values = append(values, packed...)
	}
	return crypto.Keccak256(crypto.Keccak256(schema), crypto.Keccak256(values)), nil
}

// packLegacy solidity 紧凑编码 (abi.encodePacked)
func packLegacy(typ string, value json.RawMessage) ([]byte, error) {
	switch {
	case typ == "string":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil

	case typ == "bytes":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, err
		}
		return hexutil.Decode(s)

	case typ == "bool":
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return nil, err
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case typ == "address":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s).Bytes(), nil

	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		bits, err := typeSize(strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int"), 256)
		if err != nil || bits%8 != 0 || bits > 256 {
			return nil, fmt.Errorf("invalid type %q", typ)
		}
		n, err := parseInteger(value)
		if err != nil {
			return nil, err
		}
		word := math.PaddedBigBytes(math.U256(n), 32)
		return word[32-bits/8:], nil

	case strings.HasPrefix(typ, "bytes"):
		size, err := typeSize(strings.TrimPrefix(typ, "bytes"), 0)
		if err != nil || size < 1 || size > 32 {
			return nil, fmt.Errorf("invalid type %q", typ)
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, err
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) > size {
			return nil, fmt.Errorf("value too long for %s", typ)
		}
		return common.RightPadBytes(b, size), nil
	}
	return nil, fmt.Errorf("unsupported type %q", typ)
}

func typeSize(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// parseInteger 支持 JSON 数字、十进制字符串和 0x 前缀的十六进制字符串
func parseInteger(value json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		var num json.Number
		if err := json.Unmarshal(value, &num); err != nil {
			return nil, err
		}
		s = num.String()
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		if neg, ok := new(big.Int).SetString(s, 10); ok && neg.Sign() < 0 {
			return neg, nil
		}
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
