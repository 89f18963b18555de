package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizerConfig 归一化配置
type NormalizerConfig struct {
	MaxStaleness    time.Duration   // 过期阈值，默认 1 小时
	Window          int             // EMA 窗口，默认 7
	MaxPeriodChange decimal.Decimal // 相邻周期最大变动比例，默认 0.5
	Strict          bool            // 严格模式下过期观测直接报错
}

// DefaultNormalizerConfig 默认配置：过期仅降低置信度，不中断
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		MaxStaleness:    DefaultMaxStaleness,
		Window:          DefaultSmoothingWindow,
		MaxPeriodChange: DefaultMaxPeriodChange(),
	}
}

// Normalizer 利率观测归一化器：过期检查、异常检测、置信度评分、平滑。
// 自身无状态，历史由调用方传入，同样输入必得同样输出。
type Normalizer struct {
	cfg NormalizerConfig
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = DefaultMaxStaleness
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultSmoothingWindow
	}
	if cfg.MaxPeriodChange.LessThanOrEqual(decimal.Zero) {
		cfg.MaxPeriodChange = DefaultMaxPeriodChange()
	}
	return &Normalizer{cfg: cfg}
}

// Normalize 对单个观测做质量判定并返回平滑后的观测值。
// history 为同一 (协议, 资产) 的既往观测，按时间升序；异常点只降权，不丢弃。
func (n *Normalizer) Normalize(obs RateObservation, history []RateObservation, now time.Time) (RateObservation, QualityVerdict, error) {
	age := now.Sub(obs.Timestamp)
	stale := age > n.cfg.MaxStaleness
	if stale && n.cfg.Strict {
		return RateObservation{}, QualityVerdict{}, fmt.Errorf("%w: age %s exceeds %s", ErrStaleData, age, n.cfg.MaxStaleness)
	}

	supplyHistory := make([]decimal.Decimal, len(history))
	borrowHistory := make([]decimal.Decimal, len(history))
	for i, h := range history {
		supplyHistory[i] = h.SupplyRate
		borrowHistory[i] = h.BorrowRate
	}

	anomalous, reason := detectAnomaly(obs.SupplyRate, supplyHistory)
	if !anomalous {
		anomalous, reason = detectAnomaly(obs.BorrowRate, borrowHistory)
	}

	confidence := scoreConfidence(age, n.cfg.MaxStaleness, anomalous, len(history))

	normalized := obs
	normalized.SupplyRate = n.smoothLatest(supplyHistory, obs.SupplyRate)
	normalized.BorrowRate = n.smoothLatest(borrowHistory, obs.BorrowRate)
	normalized.Confidence = confidence

	verdict := QualityVerdict{
		Stale:         stale,
		Anomalous:     anomalous,
		AnomalyReason: reason,
		Confidence:    confidence,
		HistoryPoints: len(history),
	}
	return normalized, verdict, nil
}

func (n *Normalizer) smoothLatest(history []decimal.Decimal, current decimal.Decimal) decimal.Decimal {
	series := make([]decimal.Decimal, 0, len(history)+1)
	series = append(series, history...)
	series = append(series, current)
	smoothed := SmoothSeries(series, n.cfg.Window, n.cfg.MaxPeriodChange)
	return smoothed[len(smoothed)-1]
}
