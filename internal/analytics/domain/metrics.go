// Package domain 绩效指标与基准对比领域层
package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientDuration 年化换算要求至少一个完整模拟日
	ErrInsufficientDuration = errors.New("insufficient duration")
)

const (
	// DefaultRiskFreeRate 年化无风险利率（三月期国债近似）
	DefaultRiskFreeRate = 0.04
	// RatioCap 风险调整比率的绝对值上限，分母退化时作为哨兵值返回
	RatioCap = 10.0

	daysPerYear = 365.0
	// 日波动低于该阈值视为零波动
	minDailyVolatility = 0.0001
)

// TimeWeightedReturn 份额价格指数序列的时间加权收益率 (末值/首值 - 1)。
// 指数只随收获增长、不随出入金变化，因此该收益率与资金流时点无关。
func TimeWeightedReturn(indexHistory []decimal.Decimal) decimal.Decimal {
	if len(indexHistory) == 0 {
		return decimal.Zero
	}
	first := indexHistory[0]
	if !first.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	last := indexHistory[len(indexHistory)-1]
	return last.Div(first).Sub(decimal.NewFromInt(1))
}

// AnnualizedReturn 按复利把区间收益率折算为年化收益率
func AnnualizedReturn(totalReturn decimal.Decimal, elapsedDays int) (decimal.Decimal, error) {
	if elapsedDays < 1 {
		return decimal.Zero, fmt.Errorf("%w: %d elapsed days", ErrInsufficientDuration, elapsedDays)
	}
	growth := decimal.NewFromInt(1).Add(totalReturn)
	if !growth.GreaterThan(decimal.Zero) {
		// 本金全损，年化收益率封底为 -100%
		return decimal.NewFromInt(-1), nil
	}
	annualized := math.Pow(growth.InexactFloat64(), daysPerYear/float64(elapsedDays)) - 1
	return decimal.NewFromFloat(annualized), nil
}

// DailyReturns 序列逐日变化率，跳过非正的前值
func DailyReturns(history []decimal.Decimal) []float64 {
	dec := dailyReturnsDec(history)
	returns := make([]float64, len(dec))
	for i, r := range dec {
		returns[i] = r.InexactFloat64()
	}
	return returns
}

func dailyReturnsDec(history []decimal.Decimal) []decimal.Decimal {
	if len(history) < 2 {
		return nil
	}
	returns := make([]decimal.Decimal, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1]
		if !prev.GreaterThan(decimal.Zero) {
			continue
		}
		returns = append(returns, history[i].Sub(prev).Div(prev))
	}
	return returns
}

// MaxDrawdown 净值序列的最大回撤（峰值到谷值的最大跌幅，非正数）。
// 扫描运行峰值的算法与模拟器逐日跟踪一致，同一序列两种算法结果相等。
func MaxDrawdown(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	peak := values[0]
	maxDrawdown := decimal.Zero
	for _, v := range values {
		if v.GreaterThan(peak) {
			peak = v
		}
		if !peak.GreaterThan(decimal.Zero) {
			continue
		}
		drawdown := v.Sub(peak).Div(peak)
		if drawdown.LessThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// Volatility 日收益率的样本标准差，annualize 为真时乘以 sqrt(365)
func Volatility(dailyReturns []float64, annualize bool) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(dailyReturns)
	if err != nil {
		return 0
	}
	if annualize {
		sd *= math.Sqrt(daysPerYear)
	}
	return sd
}

// SharpeRatio 年化夏普比率 (年化均值收益 - 无风险利率) / 年化波动率。
// 波动率为零时返回哨兵值而非除零，结果限制在 [-RatioCap, RatioCap]。
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	mean, err := stats.Mean(dailyReturns)
	if err != nil {
		return 0
	}
	excess := mean*daysPerYear - riskFreeRate
	dailyVol := Volatility(dailyReturns, false)
	if dailyVol < minDailyVolatility {
		return ratioSentinel(excess)
	}
	return clampRatio(excess / (dailyVol * math.Sqrt(daysPerYear)))
}

// SortinoRatio 索提诺比率，分母只取低于无风险日收益的下行波动。
// 无下行样本或下行波动为零时返回与夏普相同的哨兵值。
func SortinoRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	mean, err := stats.Mean(dailyReturns)
	if err != nil {
		return 0
	}
	excess := mean*daysPerYear - riskFreeRate

	target := riskFreeRate / daysPerYear
	downside := make([]float64, 0, len(dailyReturns))
	for _, r := range dailyReturns {
		if r < target {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return ratioSentinel(excess)
	}
	downsideDev, err := stats.StandardDeviationPopulation(downside)
	if err != nil || downsideDev < minDailyVolatility {
		return ratioSentinel(excess)
	}
	return clampRatio(excess / (downsideDev * math.Sqrt(daysPerYear)))
}

// CalmarRatio 年化收益与最大回撤绝对值之比，回撤为零时返回哨兵值
func CalmarRatio(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return ratioSentinel(annualizedReturn)
	}
	return clampRatio(annualizedReturn / math.Abs(maxDrawdown))
}

// WinRate 正收益日占比
func WinRate(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range dailyReturns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(dailyReturns))
}

// ratioSentinel 分母退化时的比率哨兵：符号跟随分子，分子为零时取零
func ratioSentinel(numerator float64) float64 {
	switch {
	case numerator > 0:
		return RatioCap
	case numerator < 0:
		return -RatioCap
	default:
		return 0
	}
}

func clampRatio(v float64) float64 {
	return math.Max(-RatioCap, math.Min(RatioCap, v))
}
