package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReportInput 绩效报告计算输入
type ReportInput struct {
	InitialCapital decimal.Decimal   // 期初本金，为正时作为净值序列的起点
	NetValues      []decimal.Decimal // 逐日组合净值
	IndexHistory   []decimal.Decimal // 份额价格指数序列，缺失时退化用净值收益
	ElapsedDays    int               // 为零时取净值序列长度
	RiskFreeRate   float64           // 为零时取 DefaultRiskFreeRate
}

// PerformanceReport 绩效报告
type PerformanceReport struct {
	Days               int             `json:"days"`
	FinalValue         decimal.Decimal `json:"final_value"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TimeWeightedReturn decimal.Decimal `json:"time_weighted_return"`
	AnnualizedReturn   decimal.Decimal `json:"annualized_return"`
	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	WorstDailyLoss     decimal.Decimal `json:"worst_daily_loss"`
	BestDay            decimal.Decimal `json:"best_day"`
	WorstDay           decimal.Decimal `json:"worst_day"`
	AvgDailyReturn     decimal.Decimal `json:"avg_daily_return"`
	Volatility         float64         `json:"volatility"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
	SortinoRatio       float64         `json:"sortino_ratio"`
	CalmarRatio        float64         `json:"calmar_ratio"`
	WinRate            float64         `json:"win_rate"`
}

// ComputeReport 由净值与指数历史计算完整绩效报告
func ComputeReport(input ReportInput) (*PerformanceReport, error) {
	if len(input.NetValues) == 0 {
		return nil, fmt.Errorf("empty net value history")
	}
	elapsedDays := input.ElapsedDays
	if elapsedDays <= 0 {
		elapsedDays = len(input.NetValues)
	}
	riskFree := input.RiskFreeRate
	if riskFree == 0 {
		riskFree = DefaultRiskFreeRate
	}

	// 期初本金作为序列起点，回撤与日收益的口径和模拟器一致
	values := input.NetValues
	if input.InitialCapital.GreaterThan(decimal.Zero) {
		values = append([]decimal.Decimal{input.InitialCapital}, input.NetValues...)
	}
	finalValue := values[len(values)-1]

	totalReturn := decimal.Zero
	if values[0].GreaterThan(decimal.Zero) {
		totalReturn = finalValue.Sub(values[0]).Div(values[0])
	}

	twr := totalReturn
	if len(input.IndexHistory) >= 2 {
		twr = TimeWeightedReturn(input.IndexHistory)
	}
	annualized, err := AnnualizedReturn(twr, elapsedDays)
	if err != nil {
		return nil, err
	}

	returnsDec := dailyReturnsDec(values)
	returns := make([]float64, len(returnsDec))
	for i, r := range returnsDec {
		returns[i] = r.InexactFloat64()
	}

	bestDay := decimal.Zero
	worstDay := decimal.Zero
	worstLoss := decimal.Zero
	avgReturn := decimal.Zero
	if len(returnsDec) > 0 {
		bestDay = returnsDec[0]
		worstDay = returnsDec[0]
		sum := decimal.Zero
		for _, r := range returnsDec {
			if r.GreaterThan(bestDay) {
				bestDay = r
			}
			if r.LessThan(worstDay) {
				worstDay = r
			}
			if r.LessThan(worstLoss) {
				worstLoss = r
			}
			sum = sum.Add(r)
		}
		avgReturn = sum.Div(decimal.NewFromInt(int64(len(returnsDec))))
	}

	maxDrawdown := MaxDrawdown(values)

	return &PerformanceReport{
		Days:               elapsedDays,
		FinalValue:         finalValue,
		TotalReturn:        totalReturn,
		TimeWeightedReturn: twr,
		AnnualizedReturn:   annualized,
		MaxDrawdown:        maxDrawdown,
		WorstDailyLoss:     worstLoss,
		BestDay:            bestDay,
		WorstDay:           worstDay,
		AvgDailyReturn:     avgReturn,
		Volatility:         Volatility(returns, true),
		SharpeRatio:        SharpeRatio(returns, riskFree),
		SortinoRatio:       SortinoRatio(returns, riskFree),
		CalmarRatio:        CalmarRatio(annualized.InexactFloat64(), maxDrawdown.InexactFloat64()),
		WinRate:            WinRate(returns),
	}, nil
}
