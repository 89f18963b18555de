package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func constantHistory(n int, supply, borrow float64, start time.Time) []RateObservation {
	history := make([]RateObservation, n)
	for i := 0; i < n; i++ {
		history[i] = NewRateObservation(
			ProtocolAaveV3, "USDC",
			decimal.NewFromFloat(supply), decimal.NewFromFloat(borrow),
			decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.85),
			start.Add(time.Duration(i)*24*time.Hour),
		)
	}
	return history
}

func TestNormalizeFreshCleanObservation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := constantHistory(10, 0.05, 0.07, now.Add(-10*24*time.Hour))
	obs := NewRateObservation(ProtocolAaveV3, "USDC",
		decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.07),
		decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.85), now)

	n := NewNormalizer(DefaultNormalizerConfig())
	normalized, verdict, err := n.Normalize(obs, history, now)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if verdict.Stale || verdict.Anomalous {
		t.Errorf("verdict = %+v, expected fresh and clean", verdict)
	}
	// 40 freshness + 30 no anomaly + 30*10/30 maturity = 80
	if math.Abs(verdict.Confidence-0.80) > 1e-9 {
		t.Errorf("Confidence = %v, expected 0.80", verdict.Confidence)
	}
	if !normalized.SupplyRate.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("smoothed supply rate = %s, expected 0.05 for constant series", normalized.SupplyRate)
	}
}

func TestNormalizeStaleObservation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := NewRateObservation(ProtocolCompoundV3, "USDC",
		decimal.NewFromFloat(0.03), decimal.NewFromFloat(0.05),
		decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.85), now.Add(-2*time.Hour))

	t.Run("default mode degrades confidence", func(t *testing.T) {
		n := NewNormalizer(DefaultNormalizerConfig())
		_, verdict, err := n.Normalize(obs, nil, now)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !verdict.Stale {
			t.Error("expected stale verdict")
		}
		// 0 freshness + 30 no anomaly + 10 maturity = 40
		if math.Abs(verdict.Confidence-0.40) > 1e-9 {
			t.Errorf("Confidence = %v, expected 0.40", verdict.Confidence)
		}
	})

	t.Run("strict mode fails", func(t *testing.T) {
		cfg := DefaultNormalizerConfig()
		cfg.Strict = true
		n := NewNormalizer(cfg)
		_, _, err := n.Normalize(obs, nil, now)
		if !errors.Is(err, ErrStaleData) {
			t.Errorf("Normalize() error = %v, expected ErrStaleData", err)
		}
	})
}

func TestNormalizeAnomalousSpike(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := constantHistory(5, 0.05, 0.07, now.Add(-5*24*time.Hour))
	// 10x spike, observed 10 minutes ago
	obs := NewRateObservation(ProtocolAaveV3, "USDC",
		decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.07),
		decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.85), now.Add(-10*time.Minute))

	n := NewNormalizer(DefaultNormalizerConfig())
	normalized, verdict, err := n.Normalize(obs, history, now)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !verdict.Anomalous {
		t.Fatal("expected anomalous verdict for 10x spike")
	}
	if verdict.Confidence >= 0.5 {
		t.Errorf("Confidence = %v, expected below 0.5", verdict.Confidence)
	}
	// EMA would give 0.1625; period-over-period cap limits it to 0.05*1.5
	if !normalized.SupplyRate.Equal(decimal.NewFromFloat(0.075)) {
		t.Errorf("smoothed supply rate = %s, expected capped 0.075", normalized.SupplyRate)
	}
	if normalized.SupplyRate.GreaterThan(decimal.NewFromFloat(0.5)) {
		t.Error("smoothed rate exceeds raw spike")
	}
}

func TestDetectAnomaly(t *testing.T) {
	flat := []decimal.Decimal{
		decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.051),
		decimal.NewFromFloat(0.049), decimal.NewFromFloat(0.05),
	}

	tests := []struct {
		name    string
		value   float64
		history []decimal.Decimal
		want    bool
	}{
		{"spike above 3 sigma", 0.5, flat, true},
		{"unrealistic drop", 0.004, flat, true},
		{"within band", 0.052, flat, false},
		{"insufficient history", 0.5, flat[:1], false},
		{"near zero mean ignores drop guard", 0.0001, []decimal.Decimal{decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.001)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := detectAnomaly(decimal.NewFromFloat(tt.value), tt.history)
			if got != tt.want {
				t.Errorf("detectAnomaly(%v) = %v (%s), expected %v", tt.value, got, reason, tt.want)
			}
			if got && reason == "" {
				t.Error("anomalous verdict must carry a reason")
			}
		})
	}
}

func TestScoreConfidenceMaturityTiers(t *testing.T) {
	tests := []struct {
		name   string
		points int
		want   float64
	}{
		{"no history", 0, 0.80},
		{"below minimum", 6, 0.80},
		{"at minimum", 7, 0.77},
		{"growing", 15, 0.85},
		{"mature", 30, 1.00},
		{"beyond mature", 100, 1.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreConfidence(0, DefaultMaxStaleness, false, tt.points)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("scoreConfidence(points=%d) = %v, expected %v", tt.points, got, tt.want)
			}
		})
	}
}

func TestScoreConfidenceFreshnessDecay(t *testing.T) {
	half := scoreConfidence(30*time.Minute, time.Hour, false, 0)
	if math.Abs(half-0.60) > 1e-9 {
		t.Errorf("confidence at half staleness = %v, expected 0.60", half)
	}
	future := scoreConfidence(-time.Minute, time.Hour, false, 0)
	if math.Abs(future-0.80) > 1e-9 {
		t.Errorf("confidence with future timestamp = %v, expected clamped 0.80", future)
	}
}
