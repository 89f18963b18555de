package domain

import "context"

// SimulationRunRepository 模拟运行仓储
type SimulationRunRepository interface {
	Create(ctx context.Context, run *SimulationRun) error
	Update(ctx context.Context, run *SimulationRun) error
	FindByRunID(ctx context.Context, runID string) (*SimulationRun, error)
	ListRecent(ctx context.Context, limit int) ([]*SimulationRun, error)
}

// SnapshotRepository 组合快照仓储，引擎只写，查询侧只读
type SnapshotRepository interface {
	SaveBatch(ctx context.Context, records []*SnapshotRecord) error
	FindByRunID(ctx context.Context, runID string) ([]*SnapshotRecord, error)
}

// StrategyRepository 策略配置仓储
type StrategyRepository interface {
	Create(ctx context.Context, strategy *StrategyConfig) error
	Update(ctx context.Context, strategy *StrategyConfig) error
	FindByID(ctx context.Context, id uint) (*StrategyConfig, error)
	FindByName(ctx context.Context, name string) (*StrategyConfig, error)
	ListActive(ctx context.Context) ([]*StrategyConfig, error)
}

// RunReportCache 最近完成模拟运行的报告缓存
type RunReportCache interface {
	SetLatest(ctx context.Context, run *SimulationRun) error
	GetLatest(ctx context.Context) (*SimulationRun, error)
}
