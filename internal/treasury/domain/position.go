// Package domain 金库收益模拟领域层
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInvalidRiskParameter   = errors.New("risk parameter must be in (0, 1]")
)

// Protocol 借贷协议标识
type Protocol string

const (
	ProtocolAaveV3     Protocol = "aave-v3"
	ProtocolCompoundV3 Protocol = "compound-v3"
	ProtocolMorphoV1   Protocol = "morpho-v1"
)

const daysPerYear = 365

// InfiniteHealthFactor 无债务仓位健康因子的哨兵值
func InfiniteHealthFactor() decimal.Decimal {
	return decimal.NewFromInt(9999)
}

// PositionParams 开仓参数
type PositionParams struct {
	LTV                  decimal.Decimal `json:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	SupplyRate           decimal.Decimal `json:"supply_rate"`
	BorrowRate           decimal.Decimal `json:"borrow_rate"`
	HarvestInterval      int             `json:"harvest_interval"`
}

// DefaultPositionParams 稳定币借贷市场的典型参数
func DefaultPositionParams() PositionParams {
	return PositionParams{
		LTV:                  decimal.NewFromFloat(0.80),
		LiquidationThreshold: decimal.NewFromFloat(0.85),
		SupplyRate:           decimal.NewFromFloat(0.05),
		BorrowRate:           decimal.NewFromFloat(0.07),
		HarvestInterval:      30,
	}
}

// Position 单一协议资产敞口，份额指数记账
type Position struct {
	Protocol             Protocol        `json:"protocol"`
	Asset                string          `json:"asset"`
	Collateral           decimal.Decimal `json:"collateral"`
	Debt                 decimal.Decimal `json:"debt"`
	LTV                  decimal.Decimal `json:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	SupplyRate           decimal.Decimal `json:"supply_rate"`
	BorrowRate           decimal.Decimal `json:"borrow_rate"`

	// 份额指数仅在收获时推进，单调不减
	SharePriceIndex  decimal.Decimal `json:"share_price_index"`
	InitialShares    decimal.Decimal `json:"initial_shares"`
	PendingYield     decimal.Decimal `json:"pending_yield"`
	RealizedYield    decimal.Decimal `json:"realized_yield"`
	HarvestInterval  int             `json:"harvest_interval"`
	DaysSinceHarvest int             `json:"days_since_harvest"`

	TotalInterestEarned decimal.Decimal `json:"total_interest_earned"`
	TotalInterestPaid   decimal.Decimal `json:"total_interest_paid"`

	OpenedAt    time.Time `json:"opened_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewPosition 创建仓位，初始抵押按指数 1.0 铸造份额
func NewPosition(protocol Protocol, asset string, collateral decimal.Decimal, params PositionParams) (*Position, error) {
	if collateral.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if params.LTV.IsZero() {
		params.LTV = decimal.NewFromFloat(0.80)
	}
	if params.LiquidationThreshold.IsZero() {
		params.LiquidationThreshold = decimal.NewFromFloat(0.85)
	}
	if !validRiskParameter(params.LTV) || !validRiskParameter(params.LiquidationThreshold) {
		return nil, ErrInvalidRiskParameter
	}

	now := time.Now()
	return &Position{
		Protocol:             protocol,
		Asset:                asset,
		Collateral:           collateral,
		Debt:                 decimal.Zero,
		LTV:                  params.LTV,
		LiquidationThreshold: params.LiquidationThreshold,
		SupplyRate:           params.SupplyRate,
		BorrowRate:           params.BorrowRate,
		SharePriceIndex:      decimal.NewFromInt(1),
		InitialShares:        collateral,
		PendingYield:         decimal.Zero,
		RealizedYield:        decimal.Zero,
		HarvestInterval:      params.HarvestInterval,
		DaysSinceHarvest:     0,
		TotalInterestEarned:  decimal.Zero,
		TotalInterestPaid:    decimal.Zero,
		OpenedAt:             now,
		LastUpdated:          now,
	}, nil
}

func validRiskParameter(v decimal.Decimal) bool {
	return v.GreaterThan(decimal.Zero) && v.LessThanOrEqual(decimal.NewFromInt(1))
}

// Deposit 追加抵押；中途追加不铸造新份额，不参与指数收益
func (p *Position) Deposit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	p.Collateral = p.Collateral.Add(amount)
	p.LastUpdated = time.Now()
	return nil
}

// Withdraw 提取抵押，提取后健康因子不得低于 1
func (p *Position) Withdraw(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.Collateral) {
		return ErrInsufficientCollateral
	}
	remaining := p.Collateral.Sub(amount)
	if p.Debt.GreaterThan(decimal.Zero) {
		hf := remaining.Mul(p.LiquidationThreshold).Div(p.Debt)
		if hf.LessThan(decimal.NewFromInt(1)) {
			return ErrInsufficientCollateral
		}
	}
	p.Collateral = remaining
	p.LastUpdated = time.Now()
	return nil
}

// Borrow 借款不得超过剩余可借额度，入金不会隐式产生债务
func (p *Position) Borrow(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.AvailableToBorrow()) {
		return ErrInsufficientCollateral
	}
	p.Debt = p.Debt.Add(amount)
	p.LastUpdated = time.Now()
	return nil
}

// Repay 还款，超出债务的部分按全额清偿处理
func (p *Position) Repay(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.Debt) {
		amount = p.Debt
	}
	p.Debt = p.Debt.Sub(amount)
	p.LastUpdated = time.Now()
	return nil
}

// Accrue 按年化利率计提一日：供给利息进入待收获，借款利息滚入债务
func (p *Position) Accrue(supplyRate, borrowRate decimal.Decimal) (earned, paid decimal.Decimal) {
	dailySupply := supplyRate.Div(decimal.NewFromInt(daysPerYear))
	dailyBorrow := borrowRate.Div(decimal.NewFromInt(daysPerYear))

	earned = p.shareValue().Mul(dailySupply)
	paid = p.Debt.Mul(dailyBorrow)

	p.PendingYield = p.PendingYield.Add(earned)
	p.Debt = p.Debt.Add(paid)
	p.TotalInterestEarned = p.TotalInterestEarned.Add(earned)
	p.TotalInterestPaid = p.TotalInterestPaid.Add(paid)
	p.DaysSinceHarvest++
	p.LastUpdated = time.Now()
	return earned, paid
}

// 计提基准是份额价值，不含中途追加的闲置抵押
func (p *Position) shareValue() decimal.Decimal {
	return p.InitialShares.Mul(p.SharePriceIndex)
}

// HarvestResult 收获结果；未执行时 NetYield 给出跳过原因的数值依据
type HarvestResult struct {
	Executed   bool            `json:"executed"`
	GrossYield decimal.Decimal `json:"gross_yield"`
	GasCost    decimal.Decimal `json:"gas_cost"`
	NetYield   decimal.Decimal `json:"net_yield"`
}

// Harvest 将待收获收益落实进份额指数。
// 待收获不足以覆盖 gas 时跳过，状态不变，计日器继续累计。
func (p *Position) Harvest(gasCost decimal.Decimal) HarvestResult {
	result := HarvestResult{
		GrossYield: p.PendingYield,
		GasCost:    gasCost,
		NetYield:   p.PendingYield.Sub(gasCost),
	}
	if p.PendingYield.LessThanOrEqual(gasCost) {
		return result
	}

	net := result.NetYield
	basis := p.shareValue()
	p.SharePriceIndex = p.SharePriceIndex.Mul(decimal.NewFromInt(1).Add(net.Div(basis)))
	p.Collateral = p.Collateral.Add(net)
	p.RealizedYield = p.RealizedYield.Add(net)
	p.PendingYield = decimal.Zero
	p.DaysSinceHarvest = 0
	p.LastUpdated = time.Now()

	result.Executed = true
	return result
}

// HarvestDue 是否到达收获间隔；间隔为 0 表示只允许手动收获
func (p *Position) HarvestDue() bool {
	return p.HarvestInterval > 0 && p.DaysSinceHarvest >= p.HarvestInterval
}

// HealthFactor (抵押 × 清算阈值) / 债务；无债务返回哨兵值
func (p *Position) HealthFactor() decimal.Decimal {
	if p.Debt.IsZero() {
		return InfiniteHealthFactor()
	}
	return p.Collateral.Mul(p.LiquidationThreshold).Div(p.Debt)
}

// CurrentLTV 当前债务抵押比
func (p *Position) CurrentLTV() decimal.Decimal {
	if p.Collateral.IsZero() {
		return decimal.Zero
	}
	return p.Debt.Div(p.Collateral)
}

// MaxBorrowable 抵押额度上限
func (p *Position) MaxBorrowable() decimal.Decimal {
	return p.Collateral.Mul(p.LTV)
}

// AvailableToBorrow 剩余可借额度
func (p *Position) AvailableToBorrow() decimal.Decimal {
	available := p.MaxBorrowable().Sub(p.Debt)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// LiquidationPriceDrop 触发清算所需的抵押价格跌幅；无债务时返回 false
func (p *Position) LiquidationPriceDrop() (decimal.Decimal, bool) {
	if p.Debt.IsZero() {
		return decimal.Zero, false
	}
	liquidationValue := p.Debt.Div(p.LiquidationThreshold)
	if liquidationValue.GreaterThanOrEqual(p.Collateral) {
		return decimal.Zero, true
	}
	return decimal.NewFromInt(1).Sub(liquidationValue.Div(p.Collateral)), true
}

// UpdateRates 更新年化利率
func (p *Position) UpdateRates(supplyRate, borrowRate decimal.Decimal) {
	p.SupplyRate = supplyRate
	p.BorrowRate = borrowRate
	p.LastUpdated = time.Now()
}

// UpdateRiskParameters 部分更新风险参数，全部校验通过后才生效
func (p *Position) UpdateRiskParameters(ltv, liquidationThreshold *decimal.Decimal) error {
	if ltv != nil && !validRiskParameter(*ltv) {
		return ErrInvalidRiskParameter
	}
	if liquidationThreshold != nil && !validRiskParameter(*liquidationThreshold) {
		return ErrInvalidRiskParameter
	}
	if ltv != nil {
		p.LTV = *ltv
	}
	if liquidationThreshold != nil {
		p.LiquidationThreshold = *liquidationThreshold
	}
	p.LastUpdated = time.Now()
	return nil
}

// NetAPY 净年化 = 供给利率 − 杠杆率 × 借款利率
func (p *Position) NetAPY() decimal.Decimal {
	if p.Collateral.IsZero() {
		return decimal.Zero
	}
	leverage := p.Debt.Div(p.Collateral)
	return p.SupplyRate.Sub(leverage.Mul(p.BorrowRate))
}

// TotalYield 已实现与待收获收益之和
func (p *Position) TotalYield() decimal.Decimal {
	return p.RealizedYield.Add(p.PendingYield)
}

// IndexReturn 份额指数累计收益率
func (p *Position) IndexReturn() decimal.Decimal {
	return p.SharePriceIndex.Sub(decimal.NewFromInt(1))
}
