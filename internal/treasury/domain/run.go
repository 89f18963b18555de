package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound      = errors.New("simulation run not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrInvalidStrategy  = errors.New("invalid strategy configuration")
)

// RunStatus 模拟运行状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SimulationRun 一次模拟运行及其结果指标
type SimulationRun struct {
	gorm.Model
	RunID          string          `gorm:"column:run_id;type:varchar(36);uniqueIndex;not null"`
	StrategyID     uint            `gorm:"column:strategy_id;index;not null"`
	Name           string          `gorm:"column:name;type:varchar(128);not null"`
	Days           int             `gorm:"column:days;not null"`
	InitialCapital decimal.Decimal `gorm:"column:initial_capital;type:decimal(20,8);not null"`

	FinalValue     decimal.Decimal `gorm:"column:final_value;type:decimal(20,8)"`
	TotalReturn    decimal.Decimal `gorm:"column:total_return;type:decimal(20,10)"`
	MaxDrawdown    decimal.Decimal `gorm:"column:max_drawdown;type:decimal(20,10)"`
	WorstDailyLoss decimal.Decimal `gorm:"column:worst_daily_loss;type:decimal(20,10)"`
	SharpeRatio    decimal.Decimal `gorm:"column:sharpe_ratio;type:decimal(20,10)"`
	Volatility     decimal.Decimal `gorm:"column:volatility;type:decimal(20,10)"`
	WinRate        decimal.Decimal `gorm:"column:win_rate;type:decimal(6,4)"`
	AvgDailyReturn decimal.Decimal `gorm:"column:avg_daily_return;type:decimal(20,10)"`
	BestDay        decimal.Decimal `gorm:"column:best_day;type:decimal(20,10)"`
	WorstDay       decimal.Decimal `gorm:"column:worst_day;type:decimal(20,10)"`

	Status       RunStatus  `gorm:"column:status;type:varchar(16);index;not null;default:pending"`
	ErrorMessage string     `gorm:"column:error_message;type:text"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

// TableName 表名
func (SimulationRun) TableName() string {
	return "sim_runs"
}

// NewSimulationRun 创建待执行的模拟运行
func NewSimulationRun(runID string, strategyID uint, name string, days int, initialCapital decimal.Decimal) *SimulationRun {
	return &SimulationRun{
		RunID:          runID,
		StrategyID:     strategyID,
		Name:           name,
		Days:           days,
		InitialCapital: initialCapital,
		Status:         RunStatusPending,
	}
}

// Start 标记运行开始
func (r *SimulationRun) Start() {
	r.Status = RunStatusRunning
}

// RunResults 运行完成后的结果指标
type RunResults struct {
	FinalValue     decimal.Decimal `json:"final_value"`
	TotalReturn    decimal.Decimal `json:"total_return"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	WorstDailyLoss decimal.Decimal `json:"worst_daily_loss"`
	SharpeRatio    decimal.Decimal `json:"sharpe_ratio"`
	Volatility     decimal.Decimal `json:"volatility"`
	WinRate        decimal.Decimal `json:"win_rate"`
	AvgDailyReturn decimal.Decimal `json:"avg_daily_return"`
	BestDay        decimal.Decimal `json:"best_day"`
	WorstDay       decimal.Decimal `json:"worst_day"`
}

// Complete 标记运行完成并记录结果
func (r *SimulationRun) Complete(results RunResults) {
	r.FinalValue = results.FinalValue
	r.TotalReturn = results.TotalReturn
	r.MaxDrawdown = results.MaxDrawdown
	r.WorstDailyLoss = results.WorstDailyLoss
	r.SharpeRatio = results.SharpeRatio
	r.Volatility = results.Volatility
	r.WinRate = results.WinRate
	r.AvgDailyReturn = results.AvgDailyReturn
	r.BestDay = results.BestDay
	r.WorstDay = results.WorstDay
	r.Status = RunStatusCompleted
	now := time.Now()
	r.CompletedAt = &now
}

// Fail 标记运行失败并记录原因
func (r *SimulationRun) Fail(message string) {
	r.Status = RunStatusFailed
	r.ErrorMessage = message
	now := time.Now()
	r.CompletedAt = &now
}

// Allocation 策略中单个仓位的资金占比
type Allocation struct {
	Protocol Protocol        `json:"protocol"`
	Asset    string          `json:"asset"`
	Weight   decimal.Decimal `json:"weight"`
}

// StrategyConfig 可复用的模拟策略配置
type StrategyConfig struct {
	gorm.Model
	Name               string          `gorm:"column:name;type:varchar(64);uniqueIndex;not null"`
	Description        string          `gorm:"column:description;type:varchar(255)"`
	RiskLevel          string          `gorm:"column:risk_level;type:varchar(16);not null"`
	HarvestInterval    int             `gorm:"column:harvest_interval;not null;default:30"`
	Allocations        string          `gorm:"column:allocations;type:json;not null"`
	RebalanceThreshold decimal.Decimal `gorm:"column:rebalance_threshold;type:decimal(6,2);not null"`
	MaxDrawdownLimit   decimal.Decimal `gorm:"column:max_drawdown_limit;type:decimal(6,2);not null"`
	Active             bool            `gorm:"column:active;not null;default:true"`
}

// TableName 表名
func (StrategyConfig) TableName() string {
	return "sim_strategies"
}

// NewStrategyConfig 创建策略；权重合计不得超过 1
func NewStrategyConfig(name, description, riskLevel string, harvestInterval int, allocations []Allocation) (*StrategyConfig, error) {
	if name == "" || len(allocations) == 0 {
		return nil, ErrInvalidStrategy
	}
	totalWeight := decimal.Zero
	for _, a := range allocations {
		if a.Weight.LessThanOrEqual(decimal.Zero) {
			return nil, ErrInvalidStrategy
		}
		totalWeight = totalWeight.Add(a.Weight)
	}
	if totalWeight.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidStrategy
	}
	if harvestInterval <= 0 {
		harvestInterval = 30
	}

	cfg := &StrategyConfig{
		Name:               name,
		Description:        description,
		RiskLevel:          riskLevel,
		HarvestInterval:    harvestInterval,
		RebalanceThreshold: decimal.NewFromFloat(5.0),
		MaxDrawdownLimit:   decimal.NewFromFloat(20.0),
		Active:             true,
	}
	if err := cfg.SetAllocations(allocations); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetAllocations 序列化仓位配置
func (c *StrategyConfig) SetAllocations(allocations []Allocation) error {
	data, err := json.Marshal(allocations)
	if err != nil {
		return err
	}
	c.Allocations = string(data)
	return nil
}

// ParseAllocations 反序列化仓位配置
func (c *StrategyConfig) ParseAllocations() ([]Allocation, error) {
	var allocations []Allocation
	if err := json.Unmarshal([]byte(c.Allocations), &allocations); err != nil {
		return nil, err
	}
	return allocations, nil
}

// Activate 启用策略
func (c *StrategyConfig) Activate() {
	c.Active = true
}

// Deactivate 停用策略
func (c *StrategyConfig) Deactivate() {
	c.Active = false
}

// SnapshotRecord 组合快照持久化记录，每次运行每日一条
type SnapshotRecord struct {
	gorm.Model
	RunID           string          `gorm:"column:run_id;type:varchar(36);uniqueIndex:idx_run_day,priority:1;not null"`
	Day             int             `gorm:"column:day;uniqueIndex:idx_run_day,priority:2;not null"`
	Timestamp       time.Time       `gorm:"column:snapshot_at;not null"`
	TotalCollateral decimal.Decimal `gorm:"column:total_collateral;type:decimal(20,8);not null"`
	TotalDebt       decimal.Decimal `gorm:"column:total_debt;type:decimal(20,8);not null"`
	NetValue        decimal.Decimal `gorm:"column:net_value;type:decimal(20,8);not null"`
	HealthFactor    decimal.Decimal `gorm:"column:health_factor;type:decimal(20,8);not null"`
	WeightedLTV     decimal.Decimal `gorm:"column:weighted_ltv;type:decimal(6,4);not null"`
	DailyYield      decimal.Decimal `gorm:"column:daily_yield;type:decimal(20,8);not null"`
	CumulativeYield decimal.Decimal `gorm:"column:cumulative_yield;type:decimal(20,8);not null"`
	SharePriceIndex decimal.Decimal `gorm:"column:share_price_index;type:decimal(20,18);not null"`
	DailyReturn     decimal.Decimal `gorm:"column:daily_return;type:decimal(20,10);not null"`
	PeakValue       decimal.Decimal `gorm:"column:peak_value;type:decimal(20,8);not null"`
	Drawdown        decimal.Decimal `gorm:"column:drawdown;type:decimal(20,10);not null"`
	NumPositions    int             `gorm:"column:num_positions;not null"`
}

// TableName 表名
func (SnapshotRecord) TableName() string {
	return "sim_snapshots"
}

// NewSnapshotRecord 由内存快照构建持久化记录
func NewSnapshotRecord(runID string, snapshot PortfolioSnapshot) *SnapshotRecord {
	return &SnapshotRecord{
		RunID:           runID,
		Day:             snapshot.Day,
		Timestamp:       snapshot.Timestamp,
		TotalCollateral: snapshot.TotalCollateral,
		TotalDebt:       snapshot.TotalDebt,
		NetValue:        snapshot.NetValue,
		HealthFactor:    snapshot.HealthFactor,
		WeightedLTV:     snapshot.WeightedLTV,
		DailyYield:      snapshot.DailyYield,
		CumulativeYield: snapshot.CumulativeYield,
		SharePriceIndex: snapshot.SharePriceIndex,
		DailyReturn:     snapshot.DailyReturn,
		PeakValue:       snapshot.PeakValue,
		Drawdown:        snapshot.Drawdown,
		NumPositions:    snapshot.NumPositions,
	}
}

// Snapshot 还原为内存快照
func (r *SnapshotRecord) Snapshot() PortfolioSnapshot {
	return PortfolioSnapshot{
		Day:             r.Day,
		Timestamp:       r.Timestamp,
		TotalCollateral: r.TotalCollateral,
		TotalDebt:       r.TotalDebt,
		NetValue:        r.NetValue,
		HealthFactor:    r.HealthFactor,
		WeightedLTV:     r.WeightedLTV,
		DailyYield:      r.DailyYield,
		CumulativeYield: r.CumulativeYield,
		SharePriceIndex: r.SharePriceIndex,
		DailyReturn:     r.DailyReturn,
		PeakValue:       r.PeakValue,
		Drawdown:        r.Drawdown,
		NumPositions:    r.NumPositions,
	}
}
