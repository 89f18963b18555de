package domain

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMaxStaleness 观测值超过该年龄视为过期
	DefaultMaxStaleness = time.Hour

	anomalySigma        = 3.0
	minAnomalyHistory   = 2
	matureHistoryPoints = 30
	minHistoryPoints    = 7
)

// QualityVerdict 单次观测的数据质量判定
type QualityVerdict struct {
	Stale         bool    `json:"stale"`
	Anomalous     bool    `json:"anomalous"`
	AnomalyReason string  `json:"anomaly_reason,omitempty"`
	Confidence    float64 `json:"confidence"`
	HistoryPoints int     `json:"history_points"`
}

// detectAnomaly 基于滚动历史判断观测值是否异常。
// 超出均值 3σ 视为尖峰；低于均值 10% 且均值非零视为不合理骤降。
// 历史不足 2 个点时不做判断。
func detectAnomaly(value decimal.Decimal, history []decimal.Decimal) (bool, string) {
	if len(history) < minAnomalyHistory {
		return false, ""
	}

	series := make([]float64, len(history))
	for i, h := range history {
		series[i] = h.InexactFloat64()
	}

	mean, err := stats.Mean(series)
	if err != nil {
		return false, ""
	}
	std, err := stats.StandardDeviationSample(series)
	if err != nil {
		return false, ""
	}

	v := value.InexactFloat64()
	if v > mean+anomalySigma*std {
		return true, fmt.Sprintf("value %.6f exceeds mean %.6f by more than %.0f stddev (%.6f)", v, mean, anomalySigma, std)
	}
	if v < mean*0.1 && mean > 0.01 {
		return true, fmt.Sprintf("value %.6f below 10%% of trailing mean %.6f", v, mean)
	}
	return false, ""
}

// scoreConfidence 置信度加权评分:
// 新鲜度最高 40 分 (随年龄线性衰减，过期为 0)，无异常 30 分，
// 历史成熟度最高 30 分，总分归一化到 [0,1]。
func scoreConfidence(age, maxStaleness time.Duration, anomalous bool, historyPoints int) float64 {
	if age < 0 {
		age = 0
	}

	score := 0.0
	if age < maxStaleness {
		score += 40 * (1 - age.Seconds()/maxStaleness.Seconds())
	}
	if !anomalous {
		score += 30
	}
	switch {
	case historyPoints >= matureHistoryPoints:
		score += 30
	case historyPoints >= minHistoryPoints:
		score += 30 * float64(historyPoints) / float64(matureHistoryPoints)
	default:
		score += 10
	}
	return score / 100
}
