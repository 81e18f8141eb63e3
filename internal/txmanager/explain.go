package txmanager

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Explain 构建时预估的结果，随交易记录保存供历史展示
type Explain struct {
	Action            string          `json:"action"`
	Symbol            string          `json:"symbol"`
	GasLimit          uint64          `json:"gas_limit"`
	GasPriceGwei      decimal.Decimal `json:"gas_price_gwei"`
	Value             decimal.Decimal `json:"value"`
	Fee               decimal.Decimal `json:"fee"`
	Balance           decimal.Decimal `json:"balance"`
	BalanceSufficient bool            `json:"balance_sufficient"`
}

func weiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}

func explain(action, symbol string, gas uint64, price, value, balance *big.Int) Explain {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	total := new(big.Int).Add(fee, value)
	return Explain{
		Action:            action,
		Symbol:            symbol,
		GasLimit:          gas,
		GasPriceGwei:      weiToGwei(price),
		Value:             weiToEther(value),
		Fee:               weiToEther(fee),
		Balance:           weiToEther(balance),
		BalanceSufficient: balance != nil && balance.Cmp(total) >= 0,
	}
}
