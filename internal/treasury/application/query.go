// Package application 金库模拟查询服务
package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
)

// QueryService 金库模拟查询服务
type QueryService struct {
	runRepo      domain.SimulationRunRepository
	snapshotRepo domain.SnapshotRepository
	strategyRepo domain.StrategyRepository
	reportCache  domain.RunReportCache
	logger       *slog.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(
	runRepo domain.SimulationRunRepository,
	snapshotRepo domain.SnapshotRepository,
	strategyRepo domain.StrategyRepository,
	reportCache domain.RunReportCache,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		runRepo:      runRepo,
		snapshotRepo: snapshotRepo,
		strategyRepo: strategyRepo,
		reportCache:  reportCache,
		logger:       logger,
	}
}

// GetRun 按运行 ID 查询模拟运行，不存在时返回 nil
func (s *QueryService) GetRun(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	return s.runRepo.FindByRunID(ctx, runID)
}

// ListRecentRuns 按创建时间倒序返回最近的模拟运行
func (s *QueryService) ListRecentRuns(ctx context.Context, limit int) ([]*domain.SimulationRun, error) {
	if limit < 1 {
		limit = 20
	}
	return s.runRepo.ListRecent(ctx, limit)
}

// GetSnapshots 按模拟日升序返回一次运行的全部组合快照
func (s *QueryService) GetSnapshots(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error) {
	records, err := s.snapshotRepo.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	snapshots := make([]domain.PortfolioSnapshot, 0, len(records))
	for _, record := range records {
		snapshots = append(snapshots, record.Snapshot())
	}
	return snapshots, nil
}

// LatestReport 最近完成运行的报告，缓存未命中时回源数据库并回填
func (s *QueryService) LatestReport(ctx context.Context) (*domain.SimulationRun, error) {
	run, err := s.reportCache.GetLatest(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "report cache read failed", "error", err)
	}
	if run != nil {
		return run, nil
	}

	runs, err := s.runRepo.ListRecent(ctx, 10)
	if err != nil {
		return nil, err
	}
	for _, candidate := range runs {
		if candidate.Status == domain.RunStatusCompleted {
			run = candidate
			break
		}
	}
	if run == nil {
		return nil, nil
	}
	if err := s.reportCache.SetLatest(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "report cache backfill failed", "run_id", run.RunID, "error", err)
	}
	return run, nil
}

// GetStrategy 按名称查询策略，不存在时返回 nil
func (s *QueryService) GetStrategy(ctx context.Context, name string) (*domain.StrategyConfig, error) {
	return s.strategyRepo.FindByName(ctx, name)
}

// ListStrategies 返回全部启用中的策略
func (s *QueryService) ListStrategies(ctx context.Context) ([]*domain.StrategyConfig, error) {
	return s.strategyRepo.ListActive(ctx)
}
