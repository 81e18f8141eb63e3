package txmanager

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxParams eth_sendTransaction 的交易对象
type TxParams struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Input                hexutil.Bytes   `json:"input,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

// Payload data 和 input 任取其一
func (p TxParams) Payload() []byte {
	if len(p.Input) > 0 {
		return p.Input
	}
	return p.Data
}

// Overrides 用户在确认页修改的 nonce / gas
type Overrides struct {
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

func (p TxParams) WithOverrides(o Overrides) TxParams {
	if o.Nonce != nil {
		p.Nonce = o.Nonce
	}
	if o.Gas != nil {
		p.Gas = o.Gas
	}
	if o.GasPrice != nil {
		p.GasPrice = o.GasPrice
		p.MaxFeePerGas, p.MaxPriorityFeePerGas = nil, nil
	}
	if o.MaxFeePerGas != nil {
		p.MaxFeePerGas = o.MaxFeePerGas
		p.GasPrice = nil
	}
	if o.MaxPriorityFeePerGas != nil {
		p.MaxPriorityFeePerGas = o.MaxPriorityFeePerGas
	}
	return p
}

// Action 用于历史记录展示
func (p TxParams) Action() string {
	switch {
	case p.To == nil:
		return "contract_deploy"
	case len(p.Payload()) > 0:
		return "contract_call"
	default:
		return "send"
	}
}
