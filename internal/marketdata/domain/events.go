// Package domain 市场数据领域事件
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// RateAnomalyDetectedEvent 利率异常事件
type RateAnomalyDetectedEvent struct {
	Protocol   string          `json:"protocol"`
	Asset      string          `json:"asset"`
	SupplyRate decimal.Decimal `json:"supply_rate"`
	BorrowRate decimal.Decimal `json:"borrow_rate"`
	Reason     string          `json:"reason"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (e *RateAnomalyDetectedEvent) EventName() string     { return "marketdata.rate_anomaly_detected" }
func (e *RateAnomalyDetectedEvent) OccurredAt() time.Time { return e.Timestamp }
