// Package domain 金库模拟领域事件
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// SimulationStartedEvent 模拟开始事件
type SimulationStartedEvent struct {
	RunID          string          `json:"run_id"`
	Name           string          `json:"name"`
	Days           int             `json:"days"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (e *SimulationStartedEvent) EventName() string     { return "treasury.simulation_started" }
func (e *SimulationStartedEvent) OccurredAt() time.Time { return e.Timestamp }

// SimulationCompletedEvent 模拟完成事件
type SimulationCompletedEvent struct {
	RunID       string          `json:"run_id"`
	Days        int             `json:"days"`
	FinalValue  decimal.Decimal `json:"final_value"`
	TotalReturn decimal.Decimal `json:"total_return"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (e *SimulationCompletedEvent) EventName() string     { return "treasury.simulation_completed" }
func (e *SimulationCompletedEvent) OccurredAt() time.Time { return e.Timestamp }

// PositionOpenedEvent 开仓事件
type PositionOpenedEvent struct {
	Protocol             string          `json:"protocol"`
	Asset                string          `json:"asset"`
	Collateral           decimal.Decimal `json:"collateral"`
	LTV                  decimal.Decimal `json:"ltv"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	Timestamp            time.Time       `json:"timestamp"`
}

func (e *PositionOpenedEvent) EventName() string     { return "treasury.position_opened" }
func (e *PositionOpenedEvent) OccurredAt() time.Time { return e.Timestamp }

// HarvestExecutedEvent 收获事件
type HarvestExecutedEvent struct {
	Protocol        string          `json:"protocol"`
	Asset           string          `json:"asset"`
	Day             int             `json:"day"`
	GrossYield      decimal.Decimal `json:"gross_yield"`
	GasCost         decimal.Decimal `json:"gas_cost"`
	NetYield        decimal.Decimal `json:"net_yield"`
	SharePriceIndex decimal.Decimal `json:"share_price_index"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (e *HarvestExecutedEvent) EventName() string     { return "treasury.harvest_executed" }
func (e *HarvestExecutedEvent) OccurredAt() time.Time { return e.Timestamp }
