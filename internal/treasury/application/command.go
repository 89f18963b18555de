// Package application 金库模拟应用层
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/messagequeue"
)

// TransactionManager 在单个数据库事务内执行仓储操作
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RateProviderFactory 为单次模拟运行构造行情源
type RateProviderFactory interface {
	NewProvider(seed uint64, regime, asset string, days int) domain.RateProvider
}

// MetricsCalculator 从快照序列计算绩效指标
type MetricsCalculator interface {
	Compute(initialCapital decimal.Decimal, snapshots []domain.PortfolioSnapshot) domain.RunResults
}

// CommandService 金库模拟命令服务
type CommandService struct {
	runRepo         domain.SimulationRunRepository
	snapshotRepo    domain.SnapshotRepository
	strategyRepo    domain.StrategyRepository
	tx              TransactionManager
	providerFactory RateProviderFactory
	metrics         MetricsCalculator
	reportCache     domain.RunReportCache
	eventPublisher  messagequeue.EventPublisher
	logger          *slog.Logger
}

// NewCommandService 创建命令服务
func NewCommandService(
	runRepo domain.SimulationRunRepository,
	snapshotRepo domain.SnapshotRepository,
	strategyRepo domain.StrategyRepository,
	tx TransactionManager,
	providerFactory RateProviderFactory,
	metrics MetricsCalculator,
	reportCache domain.RunReportCache,
	eventPublisher messagequeue.EventPublisher,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		runRepo:         runRepo,
		snapshotRepo:    snapshotRepo,
		strategyRepo:    strategyRepo,
		tx:              tx,
		providerFactory: providerFactory,
		metrics:         metrics,
		reportCache:     reportCache,
		eventPublisher:  eventPublisher,
		logger:          logger,
	}
}

// CreateStrategyCommand 创建策略命令
type CreateStrategyCommand struct {
	Name            string
	Description     string
	RiskLevel       string
	HarvestInterval int
	Allocations     []domain.Allocation
}

// CreateStrategy 创建策略配置
func (s *CommandService) CreateStrategy(ctx context.Context, cmd CreateStrategyCommand) (uint, error) {
	existing, err := s.strategyRepo.FindByName(ctx, cmd.Name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("strategy already exists: %s", cmd.Name)
	}

	strategy, err := domain.NewStrategyConfig(cmd.Name, cmd.Description, cmd.RiskLevel, cmd.HarvestInterval, cmd.Allocations)
	if err != nil {
		return 0, err
	}
	if err := s.strategyRepo.Create(ctx, strategy); err != nil {
		return 0, err
	}
	return strategy.ID, nil
}

// SetStrategyActive 启用或停用策略
func (s *CommandService) SetStrategyActive(ctx context.Context, name string, active bool) error {
	strategy, err := s.strategyRepo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	if strategy == nil {
		return domain.ErrStrategyNotFound
	}
	if active {
		strategy.Activate()
	} else {
		strategy.Deactivate()
	}
	return s.strategyRepo.Update(ctx, strategy)
}

// StartSimulationCommand 启动模拟命令
type StartSimulationCommand struct {
	StrategyName   string
	Name           string
	Days           int
	InitialCapital decimal.Decimal
	Asset          string
	Seed           uint64
	Regime         string
	HarvestGasCost decimal.Decimal
	EnableCosts    bool
}

// StartSimulation 按策略配置执行一次完整模拟：开仓、逐日推进、落库快照与结果。
// 运行中任何失败都会把 run 标记为 failed 并保留已完成部分的快照。
func (s *CommandService) StartSimulation(ctx context.Context, cmd StartSimulationCommand) (string, error) {
	if cmd.Days <= 0 || cmd.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return "", domain.ErrInvalidAmount
	}
	if cmd.Asset == "" {
		cmd.Asset = "USDC"
	}

	strategy, err := s.strategyRepo.FindByName(ctx, cmd.StrategyName)
	if err != nil {
		return "", err
	}
	if strategy == nil {
		return "", domain.ErrStrategyNotFound
	}
	if !strategy.Active {
		return "", fmt.Errorf("%w: strategy %s is inactive", domain.ErrInvalidStrategy, strategy.Name)
	}
	allocations, err := strategy.ParseAllocations()
	if err != nil {
		return "", err
	}

	runID := uuid.New().String()
	run := domain.NewSimulationRun(runID, strategy.ID, cmd.Name, cmd.Days, cmd.InitialCapital)
	if err := s.runRepo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	run.Start()
	if err := s.runRepo.Update(ctx, run); err != nil {
		return runID, fmt.Errorf("start run: %w", err)
	}
	s.publishEvents(ctx, []domain.DomainEvent{&domain.SimulationStartedEvent{
		RunID:          runID,
		Name:           cmd.Name,
		Days:           cmd.Days,
		InitialCapital: cmd.InitialCapital,
		Timestamp:      time.Now(),
	}})

	simulator, err := domain.NewTreasurySimulator(cmd.InitialCapital, domain.SimulatorConfig{
		Name:           cmd.Name,
		HarvestGasCost: cmd.HarvestGasCost,
		EnableCosts:    cmd.EnableCosts,
	})
	if err != nil {
		s.failRun(ctx, run, err)
		return runID, err
	}
	for _, alloc := range allocations {
		params := domain.DefaultPositionParams()
		params.HarvestInterval = strategy.HarvestInterval
		amount := cmd.InitialCapital.Mul(alloc.Weight)
		if _, err := simulator.OpenPosition(alloc.Protocol, alloc.Asset, amount, params); err != nil {
			s.failRun(ctx, run, err)
			return runID, fmt.Errorf("open %s/%s: %w", alloc.Protocol, alloc.Asset, err)
		}
	}

	provider := s.providerFactory.NewProvider(cmd.Seed, cmd.Regime, cmd.Asset, cmd.Days)
	snapshots, runErr := simulator.RunSimulation(ctx, cmd.Days, provider)

	records := make([]*domain.SnapshotRecord, 0, len(snapshots))
	for _, snapshot := range snapshots {
		records = append(records, domain.NewSnapshotRecord(runID, snapshot))
	}

	if runErr != nil {
		// 保留已完成部分的快照，便于事后排查
		if len(records) > 0 {
			if err := s.snapshotRepo.SaveBatch(ctx, records); err != nil {
				s.logger.ErrorContext(ctx, "failed to persist partial snapshots", "run_id", runID, "error", err)
			}
		}
		s.failRun(ctx, run, runErr)
		return runID, runErr
	}

	results := s.metrics.Compute(cmd.InitialCapital, snapshots)
	run.Complete(results)
	// 快照、运行结果与完成事件在同一事务内落库
	err = s.tx.Transaction(ctx, func(txCtx context.Context) error {
		if len(records) > 0 {
			if err := s.snapshotRepo.SaveBatch(txCtx, records); err != nil {
				return fmt.Errorf("save snapshots: %w", err)
			}
		}
		if err := s.runRepo.Update(txCtx, run); err != nil {
			return err
		}
		completed := &domain.SimulationCompletedEvent{
			RunID:       runID,
			Days:        cmd.Days,
			FinalValue:  results.FinalValue,
			TotalReturn: results.TotalReturn,
			MaxDrawdown: results.MaxDrawdown,
			Timestamp:   time.Now(),
		}
		return s.eventPublisher.PublishInTx(ctx, contextx.GetTx(txCtx), completed.EventName(), runID, completed)
	})
	if err != nil {
		return runID, fmt.Errorf("persist results: %w", err)
	}

	s.publishEvents(ctx, simulator.GetDomainEvents())
	simulator.ClearDomainEvents()

	if err := s.reportCache.SetLatest(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "failed to cache run report", "run_id", runID, "error", err)
	}

	s.logger.InfoContext(ctx, "simulation completed",
		"run_id", runID,
		"days", cmd.Days,
		"final_value", results.FinalValue,
		"total_return", results.TotalReturn)
	return runID, nil
}

// failRun 标记运行失败；持久化失败只记日志，不覆盖原始错误
func (s *CommandService) failRun(ctx context.Context, run *domain.SimulationRun, cause error) {
	run.Fail(cause.Error())
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist failed run", "run_id", run.RunID, "error", err)
	}
}

// publishEvents 发布领域事件
func (s *CommandService) publishEvents(ctx context.Context, events []domain.DomainEvent) {
	for _, event := range events {
		if err := s.eventPublisher.Publish(ctx, event.EventName(), "", event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish event",
				"event", event.EventName(),
				"error", err)
		}
	}
}
