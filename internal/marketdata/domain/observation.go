// Package domain 市场利率数据领域模型
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrStaleData = errors.New("rate observation is stale")
)

// Protocol 借贷协议标识
type Protocol string

const (
	ProtocolAaveV3     Protocol = "aave-v3"
	ProtocolCompoundV3 Protocol = "compound-v3"
	ProtocolMorphoV1   Protocol = "morpho-v1"
)

// RateObservation 单个 (协议, 资产) 的利率观测值，不可变
type RateObservation struct {
	Protocol             Protocol        `json:"protocol"`
	Asset                string          `json:"asset"`
	Timestamp            time.Time       `json:"timestamp"`
	SupplyRate           decimal.Decimal `json:"supply_rate"` // 年化
	BorrowRate           decimal.Decimal `json:"borrow_rate"` // 年化
	LTV                  decimal.Decimal `json:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	Confidence           float64         `json:"confidence"` // [0,1]
}

// NewRateObservation 创建原始观测值，置信度初始为 1
func NewRateObservation(protocol Protocol, asset string, supplyRate, borrowRate, ltv, liqThreshold decimal.Decimal, ts time.Time) RateObservation {
	return RateObservation{
		Protocol:             protocol,
		Asset:                asset,
		Timestamp:            ts,
		SupplyRate:           supplyRate,
		BorrowRate:           borrowRate,
		LTV:                  ltv,
		LiquidationThreshold: liqThreshold,
		Confidence:           1.0,
	}
}

// RateRecord 归一化后的观测值持久化实体
type RateRecord struct {
	gorm.Model
	Protocol             string          `gorm:"column:protocol;type:varchar(32);index:idx_market,priority:1;not null"`
	Asset                string          `gorm:"column:asset;type:varchar(16);index:idx_market,priority:2;not null"`
	ObservedAt           time.Time       `gorm:"column:observed_at;index;not null"`
	RawSupplyRate        decimal.Decimal `gorm:"column:raw_supply_rate;type:decimal(20,10);not null"`
	RawBorrowRate        decimal.Decimal `gorm:"column:raw_borrow_rate;type:decimal(20,10);not null"`
	SupplyRate           decimal.Decimal `gorm:"column:supply_rate;type:decimal(20,10);not null"` // 平滑后
	BorrowRate           decimal.Decimal `gorm:"column:borrow_rate;type:decimal(20,10);not null"` // 平滑后
	LTV                  decimal.Decimal `gorm:"column:ltv;type:decimal(6,4);not null"`
	LiquidationThreshold decimal.Decimal `gorm:"column:liquidation_threshold;type:decimal(6,4);not null"`
	Confidence           float64         `gorm:"column:confidence;not null"`
	Anomalous            bool            `gorm:"column:anomalous;not null;default:false"`
	Stale                bool            `gorm:"column:stale;not null;default:false"`
}

func (RateRecord) TableName() string { return "md_rate_observations" }

// NewRateRecord 由原始观测、归一化观测和质量判定组装持久化行
func NewRateRecord(raw, normalized RateObservation, verdict QualityVerdict) *RateRecord {
	return &RateRecord{
		Protocol:             string(raw.Protocol),
		Asset:                raw.Asset,
		ObservedAt:           raw.Timestamp,
		RawSupplyRate:        raw.SupplyRate,
		RawBorrowRate:        raw.BorrowRate,
		SupplyRate:           normalized.SupplyRate,
		BorrowRate:           normalized.BorrowRate,
		LTV:                  normalized.LTV,
		LiquidationThreshold: normalized.LiquidationThreshold,
		Confidence:           verdict.Confidence,
		Anomalous:            verdict.Anomalous,
		Stale:                verdict.Stale,
	}
}

// Observation 将持久化行还原为观测值（平滑后的利率）
func (r *RateRecord) Observation() RateObservation {
	return RateObservation{
		Protocol:             Protocol(r.Protocol),
		Asset:                r.Asset,
		Timestamp:            r.ObservedAt,
		SupplyRate:           r.SupplyRate,
		BorrowRate:           r.BorrowRate,
		LTV:                  r.LTV,
		LiquidationThreshold: r.LiquidationThreshold,
		Confidence:           r.Confidence,
	}
}
