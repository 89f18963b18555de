// Package persistence 金库模拟仓储实现
package persistence

import (
	"context"

	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
)

// baseRepository 基础仓储，提供事务支持
type baseRepository struct {
	db *gorm.DB
}

func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// TransactionManager 事务管理器
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Transaction 开启一个新事务，事务句柄经上下文传递给仓储
func (tm *TransactionManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// --- Simulation Run Repository ---

type GormSimulationRunRepository struct {
	baseRepository
}

func NewGormSimulationRunRepository(db *gorm.DB) domain.SimulationRunRepository {
	return &GormSimulationRunRepository{baseRepository{db: db}}
}

func (r *GormSimulationRunRepository) Create(ctx context.Context, run *domain.SimulationRun) error {
	return r.getDB(ctx).WithContext(ctx).Create(run).Error
}

func (r *GormSimulationRunRepository) Update(ctx context.Context, run *domain.SimulationRun) error {
	return r.getDB(ctx).WithContext(ctx).Save(run).Error
}

func (r *GormSimulationRunRepository) FindByRunID(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	var run domain.SimulationRun
	err := r.getDB(ctx).WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *GormSimulationRunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SimulationRun, error) {
	var runs []*domain.SimulationRun
	err := r.getDB(ctx).WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// --- Snapshot Repository ---

const snapshotBatchSize = 200

type GormSnapshotRepository struct {
	baseRepository
}

func NewGormSnapshotRepository(db *gorm.DB) domain.SnapshotRepository {
	return &GormSnapshotRepository{baseRepository{db: db}}
}

func (r *GormSnapshotRepository) SaveBatch(ctx context.Context, records []*domain.SnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.getDB(ctx).WithContext(ctx).CreateInBatches(records, snapshotBatchSize).Error
}

func (r *GormSnapshotRepository) FindByRunID(ctx context.Context, runID string) ([]*domain.SnapshotRecord, error) {
	var records []*domain.SnapshotRecord
	err := r.getDB(ctx).WithContext(ctx).
		Where("run_id = ?", runID).
		Order("day ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// --- Strategy Repository ---

type GormStrategyRepository struct {
	baseRepository
}

func NewGormStrategyRepository(db *gorm.DB) domain.StrategyRepository {
	return &GormStrategyRepository{baseRepository{db: db}}
}

func (r *GormStrategyRepository) Create(ctx context.Context, strategy *domain.StrategyConfig) error {
	return r.getDB(ctx).WithContext(ctx).Create(strategy).Error
}

func (r *GormStrategyRepository) Update(ctx context.Context, strategy *domain.StrategyConfig) error {
	return r.getDB(ctx).WithContext(ctx).Save(strategy).Error
}

func (r *GormStrategyRepository) FindByID(ctx context.Context, id uint) (*domain.StrategyConfig, error) {
	var strategy domain.StrategyConfig
	if err := r.getDB(ctx).WithContext(ctx).First(&strategy, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &strategy, nil
}

func (r *GormStrategyRepository) FindByName(ctx context.Context, name string) (*domain.StrategyConfig, error) {
	var strategy domain.StrategyConfig
	err := r.getDB(ctx).WithContext(ctx).Where("name = ?", name).First(&strategy).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &strategy, nil
}

func (r *GormStrategyRepository) ListActive(ctx context.Context) ([]*domain.StrategyConfig, error) {
	var strategies []*domain.StrategyConfig
	err := r.getDB(ctx).WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&strategies).Error
	if err != nil {
		return nil, err
	}
	return strategies, nil
}
