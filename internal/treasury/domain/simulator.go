package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicatePosition   = errors.New("position already open for protocol and asset")
	ErrOutOfSequence       = errors.New("step day must be greater than last applied day")
	ErrMissingMarketData   = errors.New("missing rate observation for open position")
	ErrInsufficientCapital = errors.New("insufficient available capital")
)

// PositionKey 仓位唯一标识
type PositionKey struct {
	Protocol Protocol `json:"protocol"`
	Asset    string   `json:"asset"`
}

// RateObservation 模拟器消费的单日利率观测
type RateObservation struct {
	Protocol             Protocol        `json:"protocol"`
	Asset                string          `json:"asset"`
	Timestamp            time.Time       `json:"timestamp"`
	SupplyRate           decimal.Decimal `json:"supply_rate"`
	BorrowRate           decimal.Decimal `json:"borrow_rate"`
	LTV                  decimal.Decimal `json:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	Confidence           float64         `json:"confidence"`
}

// RateProvider 按模拟日提供各仓位的利率观测，可由合成生成器或归一化行情实现
type RateProvider interface {
	RatesFor(ctx context.Context, day int) (map[PositionKey]RateObservation, error)
}

// MissingDataPolicy 开仓仓位缺失行情时的处理策略
type MissingDataPolicy string

const (
	// MissingDataFail 缺失即终止当日推进
	MissingDataFail MissingDataPolicy = "fail"
	// MissingDataHold 沿用仓位当前利率
	MissingDataHold MissingDataPolicy = "hold_last_rate"
)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	Name              string            `json:"name"`
	MinHealthFactor   decimal.Decimal   `json:"min_health_factor"`
	HarvestGasCost    decimal.Decimal   `json:"harvest_gas_cost"`
	MissingDataPolicy MissingDataPolicy `json:"missing_data_policy"`
	EnableCosts       bool              `json:"enable_costs"`
}

// DefaultSimulatorConfig 默认关闭交易成本模型
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Name:              "Treasury",
		MinHealthFactor:   decimal.NewFromFloat(1.5),
		MissingDataPolicy: MissingDataFail,
	}
}

// PortfolioSnapshot 单个模拟日结束时的组合快照，生成后不再变更
type PortfolioSnapshot struct {
	Day             int             `json:"day"`
	Timestamp       time.Time       `json:"timestamp"`
	TotalCollateral decimal.Decimal `json:"total_collateral"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
	NetValue        decimal.Decimal `json:"net_value"`
	HealthFactor    decimal.Decimal `json:"health_factor"`
	WeightedLTV     decimal.Decimal `json:"weighted_ltv"`
	DailyYield      decimal.Decimal `json:"daily_yield"`
	CumulativeYield decimal.Decimal `json:"cumulative_yield"`
	SharePriceIndex decimal.Decimal `json:"share_price_index"`
	DailyReturn     decimal.Decimal `json:"daily_return"`
	PeakValue       decimal.Decimal `json:"peak_value"`
	Drawdown        decimal.Decimal `json:"drawdown"`
	NumPositions    int             `json:"num_positions"`
}

// TreasurySimulator 多协议金库模拟器。
// 独占其仓位集合与累计风控计数，多个实例之间互不共享状态。
type TreasurySimulator struct {
	Name            string
	InitialCapital  decimal.Decimal
	MinHealthFactor decimal.Decimal

	availableCapital decimal.Decimal
	positions        []*Position
	history          []PortfolioSnapshot

	cumulativeYield decimal.Decimal
	peakValue       decimal.Decimal
	maxDrawdown     decimal.Decimal
	worstDailyLoss  decimal.Decimal
	lastDay         int

	harvestGasCost    decimal.Decimal
	missingDataPolicy MissingDataPolicy
	costsEnabled      bool

	totalGasFees      decimal.Decimal
	totalProtocolFees decimal.Decimal
	totalSlippage     decimal.Decimal
	numTransactions   int

	startedAt    time.Time
	domainEvents []DomainEvent
}

// NewTreasurySimulator 初始资金即为首个峰值
func NewTreasurySimulator(initialCapital decimal.Decimal, cfg SimulatorConfig) (*TreasurySimulator, error) {
	if initialCapital.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if cfg.Name == "" {
		cfg.Name = "Treasury"
	}
	if cfg.MinHealthFactor.IsZero() {
		cfg.MinHealthFactor = decimal.NewFromFloat(1.5)
	}
	if cfg.MissingDataPolicy == "" {
		cfg.MissingDataPolicy = MissingDataFail
	}

	return &TreasurySimulator{
		Name:              cfg.Name,
		InitialCapital:    initialCapital,
		MinHealthFactor:   cfg.MinHealthFactor,
		availableCapital:  initialCapital,
		cumulativeYield:   decimal.Zero,
		peakValue:         initialCapital,
		maxDrawdown:       decimal.Zero,
		worstDailyLoss:    decimal.Zero,
		lastDay:           -1,
		harvestGasCost:    cfg.HarvestGasCost,
		missingDataPolicy: cfg.MissingDataPolicy,
		costsEnabled:      cfg.EnableCosts,
		totalGasFees:      decimal.Zero,
		totalProtocolFees: decimal.Zero,
		totalSlippage:     decimal.Zero,
		startedAt:         time.Now(),
	}, nil
}

// OpenPosition 以可用资金开仓；同一 (协议, 资产) 只允许一个在途仓位
func (s *TreasurySimulator) OpenPosition(protocol Protocol, asset string, amount decimal.Decimal, params PositionParams) (*Position, error) {
	return s.openPosition(protocol, asset, amount, params, TransactionDeposit)
}

func (s *TreasurySimulator) openPosition(protocol Protocol, asset string, amount decimal.Decimal, params PositionParams, txType TransactionType) (*Position, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if s.findPosition(PositionKey{Protocol: protocol, Asset: asset}) != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicatePosition, protocol, asset)
	}

	// 启用成本模型时 gas 从可用资金扣除，协议费与滑点从入金本金中扣除
	principal := amount
	var costs TransactionCosts
	if s.costsEnabled {
		costs = CalculateTransactionCosts(txType, amount, protocol)
		principal = amount.Sub(costs.ProtocolFee).Sub(costs.Slippage)
	}
	required := amount.Add(costs.GasFee)
	if required.GreaterThan(s.availableCapital) {
		return nil, fmt.Errorf("%w: need %s, available %s", ErrInsufficientCapital, required, s.availableCapital)
	}

	position, err := NewPosition(protocol, asset, principal, params)
	if err != nil {
		return nil, err
	}

	if s.costsEnabled {
		s.trackCosts(costs)
	}
	s.availableCapital = s.availableCapital.Sub(required)
	s.positions = append(s.positions, position)

	s.addEvent(&PositionOpenedEvent{
		Protocol:             string(protocol),
		Asset:                asset,
		Collateral:           position.Collateral,
		LTV:                  position.LTV,
		LiquidationThreshold: position.LiquidationThreshold,
		Timestamp:            time.Now(),
	})
	return position, nil
}

func (s *TreasurySimulator) findPosition(key PositionKey) *Position {
	for _, p := range s.positions {
		if p.Protocol == key.Protocol && p.Asset == key.Asset {
			return p
		}
	}
	return nil
}

func (s *TreasurySimulator) trackCosts(costs TransactionCosts) {
	s.totalGasFees = s.totalGasFees.Add(costs.GasFee)
	s.totalProtocolFees = s.totalProtocolFees.Add(costs.ProtocolFee)
	s.totalSlippage = s.totalSlippage.Add(costs.Slippage)
	s.numTransactions++
}

// Step 推进一个模拟日：解析行情并校验、计提、到期收获、汇总风控指标、落快照。
// 解析或校验失败时不产生任何状态变更，也不追加快照。
func (s *TreasurySimulator) Step(day int, rates map[PositionKey]RateObservation) (PortfolioSnapshot, error) {
	if day <= s.lastDay {
		return PortfolioSnapshot{}, fmt.Errorf("%w: day %d, last applied %d", ErrOutOfSequence, day, s.lastDay)
	}

	type resolvedRate struct {
		obs      RateObservation
		observed bool
	}
	resolved := make([]resolvedRate, len(s.positions))
	for i, p := range s.positions {
		obs, ok := rates[PositionKey{Protocol: p.Protocol, Asset: p.Asset}]
		if !ok {
			if s.missingDataPolicy == MissingDataHold {
				continue
			}
			return PortfolioSnapshot{}, fmt.Errorf("%w: day %d %s/%s", ErrMissingMarketData, day, p.Protocol, p.Asset)
		}
		if !obs.LTV.IsZero() && !validRiskParameter(obs.LTV) {
			return PortfolioSnapshot{}, fmt.Errorf("%w: day %d %s/%s ltv %s", ErrInvalidRiskParameter, day, p.Protocol, p.Asset, obs.LTV)
		}
		if !obs.LiquidationThreshold.IsZero() && !validRiskParameter(obs.LiquidationThreshold) {
			return PortfolioSnapshot{}, fmt.Errorf("%w: day %d %s/%s liquidation threshold %s", ErrInvalidRiskParameter, day, p.Protocol, p.Asset, obs.LiquidationThreshold)
		}
		resolved[i] = resolvedRate{obs: obs, observed: true}
	}

	totalEarned := decimal.Zero
	totalPaid := decimal.Zero
	for i, p := range s.positions {
		supplyRate, borrowRate := p.SupplyRate, p.BorrowRate
		if resolved[i].observed {
			obs := resolved[i].obs
			p.UpdateRates(obs.SupplyRate, obs.BorrowRate)
			// 取值范围已在解析阶段校验
			if !obs.LTV.IsZero() {
				p.LTV = obs.LTV
			}
			if !obs.LiquidationThreshold.IsZero() {
				p.LiquidationThreshold = obs.LiquidationThreshold
			}
			supplyRate, borrowRate = obs.SupplyRate, obs.BorrowRate
		}

		earned, paid := p.Accrue(supplyRate, borrowRate)
		totalEarned = totalEarned.Add(earned)
		totalPaid = totalPaid.Add(paid)

		if p.HarvestDue() {
			result := p.Harvest(s.harvestGasCost)
			if result.Executed {
				s.addEvent(&HarvestExecutedEvent{
					Protocol:        string(p.Protocol),
					Asset:           p.Asset,
					Day:             day,
					GrossYield:      result.GrossYield,
					GasCost:         result.GasCost,
					NetYield:        result.NetYield,
					SharePriceIndex: p.SharePriceIndex,
					Timestamp:       time.Now(),
				})
			}
		}
	}

	dailyYield := totalEarned.Sub(totalPaid)
	s.cumulativeYield = s.cumulativeYield.Add(dailyYield)

	totalCollateral := s.TotalCollateral()
	totalDebt := s.TotalDebt()
	netValue := totalCollateral.Sub(totalDebt).Add(s.availableCapital)

	// 组合级份额价格指数，按各仓位初始份额加权
	totalShares := decimal.Zero
	totalShareValue := decimal.Zero
	for _, p := range s.positions {
		totalShares = totalShares.Add(p.InitialShares)
		totalShareValue = totalShareValue.Add(p.InitialShares.Mul(p.SharePriceIndex))
	}
	sharePriceIndex := decimal.NewFromInt(1)
	if totalShares.GreaterThan(decimal.Zero) {
		sharePriceIndex = totalShareValue.Div(totalShares)
	}

	prevValue := s.InitialCapital
	if len(s.history) > 0 {
		prevValue = s.history[len(s.history)-1].NetValue
	}
	dailyReturn := decimal.Zero
	if prevValue.GreaterThan(decimal.Zero) {
		dailyReturn = netValue.Sub(prevValue).Div(prevValue)
	}

	if netValue.GreaterThan(s.peakValue) {
		s.peakValue = netValue
	}
	drawdown := decimal.Zero
	if s.peakValue.GreaterThan(decimal.Zero) {
		drawdown = netValue.Sub(s.peakValue).Div(s.peakValue)
	}
	if drawdown.LessThan(s.maxDrawdown) {
		s.maxDrawdown = drawdown
	}
	if dailyReturn.LessThan(s.worstDailyLoss) {
		s.worstDailyLoss = dailyReturn
	}

	snapshot := PortfolioSnapshot{
		Day:             day,
		Timestamp:       s.startedAt.AddDate(0, 0, day),
		TotalCollateral: totalCollateral,
		TotalDebt:       totalDebt,
		NetValue:        netValue,
		HealthFactor:    s.HealthFactor(),
		WeightedLTV:     s.WeightedLTV(),
		DailyYield:      dailyYield,
		CumulativeYield: s.cumulativeYield,
		SharePriceIndex: sharePriceIndex,
		DailyReturn:     dailyReturn,
		PeakValue:       s.peakValue,
		Drawdown:        drawdown,
		NumPositions:    len(s.positions),
	}
	s.history = append(s.history, snapshot)
	s.lastDay = day
	return snapshot, nil
}

// RunSimulation 从第 0 天起连续推进，任一天失败立即终止并返回已完成部分
func (s *TreasurySimulator) RunSimulation(ctx context.Context, days int, provider RateProvider) ([]PortfolioSnapshot, error) {
	snapshots := make([]PortfolioSnapshot, 0, days)
	for day := 0; day < days; day++ {
		if err := ctx.Err(); err != nil {
			return snapshots, err
		}
		rates, err := provider.RatesFor(ctx, day)
		if err != nil {
			return snapshots, fmt.Errorf("rates for day %d: %w", day, err)
		}
		snapshot, err := s.Step(day, rates)
		if err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// RebalanceTarget 再平衡目标仓位
type RebalanceTarget struct {
	Protocol Protocol        `json:"protocol"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	Params   PositionParams  `json:"params"`
}

// Rebalance 按目标重新配置仓位；closeExisting 为真时先平掉全部仓位，
// 净值归还可用资金。启用成本模型时新仓按再平衡费率计费。
func (s *TreasurySimulator) Rebalance(targets []RebalanceTarget, closeExisting bool) error {
	if closeExisting {
		for _, p := range s.positions {
			s.availableCapital = s.availableCapital.Add(p.Collateral.Sub(p.Debt))
		}
		s.positions = nil
	}
	for _, target := range targets {
		if _, err := s.openPosition(target.Protocol, target.Asset, target.Amount, target.Params, TransactionRebalance); err != nil {
			return err
		}
	}
	return nil
}

// TotalCollateral 全部仓位抵押合计
func (s *TreasurySimulator) TotalCollateral() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		total = total.Add(p.Collateral)
	}
	return total
}

// TotalDebt 全部仓位债务合计
func (s *TreasurySimulator) TotalDebt() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		total = total.Add(p.Debt)
	}
	return total
}

// NetValue 组合净值，含未投放的可用资金
func (s *TreasurySimulator) NetValue() decimal.Decimal {
	return s.TotalCollateral().Sub(s.TotalDebt()).Add(s.availableCapital)
}

// HealthFactor 组合健康因子，清算阈值按抵押额加权平均
func (s *TreasurySimulator) HealthFactor() decimal.Decimal {
	totalDebt := s.TotalDebt()
	if totalDebt.IsZero() {
		return InfiniteHealthFactor()
	}

	weighted := decimal.Zero
	totalCollateral := decimal.Zero
	for _, p := range s.positions {
		weighted = weighted.Add(p.Collateral.Mul(p.LiquidationThreshold))
		totalCollateral = totalCollateral.Add(p.Collateral)
	}
	if totalCollateral.IsZero() {
		return InfiniteHealthFactor()
	}
	avgThreshold := weighted.Div(totalCollateral)
	return totalCollateral.Mul(avgThreshold).Div(totalDebt)
}

// WeightedLTV 按抵押额加权的当前 LTV
func (s *TreasurySimulator) WeightedLTV() decimal.Decimal {
	totalCollateral := s.TotalCollateral()
	if totalCollateral.IsZero() {
		return decimal.Zero
	}
	weighted := decimal.Zero
	for _, p := range s.positions {
		weighted = weighted.Add(p.CurrentLTV().Mul(p.Collateral))
	}
	return weighted.Div(totalCollateral)
}

// IsHealthy 组合健康因子是否不低于配置下限
func (s *TreasurySimulator) IsHealthy() bool {
	return s.HealthFactor().GreaterThanOrEqual(s.MinHealthFactor)
}

func (s *TreasurySimulator) AvailableCapital() decimal.Decimal { return s.availableCapital }
func (s *TreasurySimulator) Positions() []*Position            { return s.positions }
func (s *TreasurySimulator) History() []PortfolioSnapshot      { return s.history }
func (s *TreasurySimulator) CumulativeYield() decimal.Decimal  { return s.cumulativeYield }
func (s *TreasurySimulator) PeakValue() decimal.Decimal        { return s.peakValue }
func (s *TreasurySimulator) MaxDrawdown() decimal.Decimal      { return s.maxDrawdown }
func (s *TreasurySimulator) WorstDailyLoss() decimal.Decimal   { return s.worstDailyLoss }

// PortfolioSummary 组合当前状态汇总
type PortfolioSummary struct {
	Name              string          `json:"name"`
	InitialCapital    decimal.Decimal `json:"initial_capital"`
	AvailableCapital  decimal.Decimal `json:"available_capital"`
	TotalCollateral   decimal.Decimal `json:"total_collateral"`
	TotalDebt         decimal.Decimal `json:"total_debt"`
	NetValue          decimal.Decimal `json:"net_value"`
	HealthFactor      decimal.Decimal `json:"health_factor"`
	WeightedLTV       decimal.Decimal `json:"weighted_ltv"`
	CumulativeYield   decimal.Decimal `json:"cumulative_yield"`
	TotalReturn       decimal.Decimal `json:"total_return"`
	Healthy           bool            `json:"healthy"`
	NumPositions      int             `json:"num_positions"`
	SimulationDays    int             `json:"simulation_days"`
	PeakValue         decimal.Decimal `json:"peak_value"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	WorstDailyLoss    decimal.Decimal `json:"worst_daily_loss"`
	TotalGasFees      decimal.Decimal `json:"total_gas_fees"`
	TotalProtocolFees decimal.Decimal `json:"total_protocol_fees"`
	TotalSlippage     decimal.Decimal `json:"total_slippage"`
	NumTransactions   int             `json:"num_transactions"`
}

// Summary 汇总组合当前状态
func (s *TreasurySimulator) Summary() PortfolioSummary {
	netValue := s.NetValue()
	totalReturn := decimal.Zero
	if s.InitialCapital.GreaterThan(decimal.Zero) {
		totalReturn = netValue.Sub(s.InitialCapital).Div(s.InitialCapital)
	}
	return PortfolioSummary{
		Name:              s.Name,
		InitialCapital:    s.InitialCapital,
		AvailableCapital:  s.availableCapital,
		TotalCollateral:   s.TotalCollateral(),
		TotalDebt:         s.TotalDebt(),
		NetValue:          netValue,
		HealthFactor:      s.HealthFactor(),
		WeightedLTV:       s.WeightedLTV(),
		CumulativeYield:   s.cumulativeYield,
		TotalReturn:       totalReturn,
		Healthy:           s.IsHealthy(),
		NumPositions:      len(s.positions),
		SimulationDays:    len(s.history),
		PeakValue:         s.peakValue,
		MaxDrawdown:       s.maxDrawdown,
		WorstDailyLoss:    s.worstDailyLoss,
		TotalGasFees:      s.totalGasFees,
		TotalProtocolFees: s.totalProtocolFees,
		TotalSlippage:     s.totalSlippage,
		NumTransactions:   s.numTransactions,
	}
}

func (s *TreasurySimulator) addEvent(event DomainEvent) {
	s.domainEvents = append(s.domainEvents, event)
}

func (s *TreasurySimulator) GetDomainEvents() []DomainEvent {
	return s.domainEvents
}

func (s *TreasurySimulator) ClearDomainEvents() {
	s.domainEvents = nil
}
