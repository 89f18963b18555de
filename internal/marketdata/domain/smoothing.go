package domain

import "github.com/shopspring/decimal"

const (
	// DefaultSmoothingWindow EMA 平滑窗口（周期数）
	DefaultSmoothingWindow = 7
)

// DefaultMaxPeriodChange 平滑后相邻周期的最大变动比例
func DefaultMaxPeriodChange() decimal.Decimal { return decimal.NewFromFloat(0.5) }

// SmoothSeries 对利率序列做 EMA 平滑，并在递推过程中对每一步
// 相对上一平滑值做硬性涨跌幅限制，防止单点异常传入模拟。
// 初始 EMA 直接取第一个值。输入不变时输出确定。
func SmoothSeries(values []decimal.Decimal, window int, maxChange decimal.Decimal) []decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultSmoothingWindow
	}

	smoothed := make([]decimal.Decimal, len(values))
	k := decimal.NewFromFloat(2.0 / float64(window+1))
	smoothed[0] = values[0]

	one := decimal.NewFromInt(1)
	for i := 1; i < len(values); i++ {
		// EMA = Value(t) * k + EMA(t-1) * (1 - k)
		ema := values[i].Mul(k).Add(smoothed[i-1].Mul(one.Sub(k)))
		smoothed[i] = CapChange(smoothed[i-1], ema, maxChange)
	}
	return smoothed
}

// CapChange 将 next 限制在 prev*(1±maxChange) 区间内。
// prev 非正或未配置上限时直接透传。
func CapChange(prev, next, maxChange decimal.Decimal) decimal.Decimal {
	if prev.LessThanOrEqual(decimal.Zero) || maxChange.LessThanOrEqual(decimal.Zero) {
		return next
	}
	one := decimal.NewFromInt(1)
	upper := prev.Mul(one.Add(maxChange))
	lower := prev.Mul(one.Sub(maxChange))
	if next.GreaterThan(upper) {
		return upper
	}
	if next.LessThan(lower) {
		return lower
	}
	return next
}
