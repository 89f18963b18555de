package domain

import "github.com/shopspring/decimal"

// TransactionType 链上交易类型
type TransactionType string

const (
	TransactionDeposit   TransactionType = "deposit"
	TransactionWithdraw  TransactionType = "withdraw"
	TransactionBorrow    TransactionType = "borrow"
	TransactionRepay     TransactionType = "repay"
	TransactionRebalance TransactionType = "rebalance"
)

// TransactionCosts 单笔交易成本拆分
type TransactionCosts struct {
	GasFee      decimal.Decimal `json:"gas_fee"`
	ProtocolFee decimal.Decimal `json:"protocol_fee"`
	Slippage    decimal.Decimal `json:"slippage"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// CalculateTransactionCosts 估算稳定币操作的 gas、协议费与滑点。
// 滑点仅对超过 1 万美元的大额交易计入。
func CalculateTransactionCosts(txType TransactionType, amount decimal.Decimal, protocol Protocol) TransactionCosts {
	gas := gasFee(txType)
	protocolFee := amount.Mul(protocolFeeRate(protocol))
	slippage := decimal.Zero
	if amount.GreaterThan(decimal.NewFromInt(10000)) {
		slippage = amount.Mul(decimal.NewFromFloat(0.0001))
	}
	return TransactionCosts{
		GasFee:      gas,
		ProtocolFee: protocolFee,
		Slippage:    slippage,
		TotalCost:   gas.Add(protocolFee).Add(slippage),
	}
}

// 以太坊主网稳定币操作的 gas 估算，美元计价
func gasFee(txType TransactionType) decimal.Decimal {
	switch txType {
	case TransactionDeposit:
		return decimal.NewFromInt(15)
	case TransactionWithdraw:
		return decimal.NewFromInt(12)
	case TransactionBorrow:
		return decimal.NewFromInt(18)
	case TransactionRepay:
		return decimal.NewFromInt(15)
	case TransactionRebalance:
		return decimal.NewFromInt(25)
	default:
		return decimal.NewFromInt(15)
	}
}

func protocolFeeRate(protocol Protocol) decimal.Decimal {
	switch protocol {
	case ProtocolAaveV3:
		return decimal.NewFromFloat(0.0009)
	case ProtocolCompoundV3:
		return decimal.Zero
	case ProtocolMorphoV1:
		return decimal.NewFromFloat(0.0005)
	default:
		return decimal.NewFromFloat(0.0005)
	}
}
