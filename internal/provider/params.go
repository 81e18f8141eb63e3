package provider

import (
	"encoding/json"
	"strings"

	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
)

var zeroAddress common.Address

// paramList 解析 params 数组，至少 min 个元素
func paramList(raw json.RawMessage, min int) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errno.ErrInvalidParams.WithMessage("params must be an array")
		}
	}
	if len(list) < min {
		return nil, errno.ErrInvalidParams.WithMessagef("expected at least %d params, got %d", min, len(list))
	}
	return list, nil
}

func paramString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errno.ErrInvalidParams.WithMessage("param must be a string")
	}
	return s, nil
}

func paramAddress(raw json.RawMessage) (common.Address, error) {
	s, err := paramString(raw)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errno.ErrInvalidParams.WithMessagef("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func isAddressParam(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return false
	}
	return len(s) == 42 && strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// decodeObject params 可以是对象，也可以是只包含一个对象的数组
func decodeObject(raw json.RawMessage, out interface{}) error {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return errno.ErrInvalidParams.WithMessage("params are empty")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errno.ErrInvalidParams.WithMessagef("invalid params: %v", err)
	}
	return nil
}
