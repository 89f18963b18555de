package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
)

type fakeRunRepo struct {
	runs map[string]*domain.SimulationRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]*domain.SimulationRun{}}
}

func (r *fakeRunRepo) Create(_ context.Context, run *domain.SimulationRun) error {
	r.runs[run.RunID] = run
	return nil
}

func (r *fakeRunRepo) Update(_ context.Context, run *domain.SimulationRun) error {
	r.runs[run.RunID] = run
	return nil
}

func (r *fakeRunRepo) FindByRunID(_ context.Context, runID string) (*domain.SimulationRun, error) {
	return r.runs[runID], nil
}

func (r *fakeRunRepo) ListRecent(_ context.Context, _ int) ([]*domain.SimulationRun, error) {
	out := make([]*domain.SimulationRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out, nil
}

type fakeSnapshotRepo struct {
	saved []*domain.SnapshotRecord
}

func (r *fakeSnapshotRepo) SaveBatch(_ context.Context, records []*domain.SnapshotRecord) error {
	r.saved = append(r.saved, records...)
	return nil
}

func (r *fakeSnapshotRepo) FindByRunID(_ context.Context, _ string) ([]*domain.SnapshotRecord, error) {
	return r.saved, nil
}

type fakeStrategyRepo struct {
	byName map[string]*domain.StrategyConfig
	nextID uint
}

func newFakeStrategyRepo() *fakeStrategyRepo {
	return &fakeStrategyRepo{byName: map[string]*domain.StrategyConfig{}}
}

func (r *fakeStrategyRepo) Create(_ context.Context, strategy *domain.StrategyConfig) error {
	r.nextID++
	strategy.ID = r.nextID
	r.byName[strategy.Name] = strategy
	return nil
}

func (r *fakeStrategyRepo) Update(_ context.Context, strategy *domain.StrategyConfig) error {
	r.byName[strategy.Name] = strategy
	return nil
}

func (r *fakeStrategyRepo) FindByID(_ context.Context, id uint) (*domain.StrategyConfig, error) {
	for _, strategy := range r.byName {
		if strategy.ID == id {
			return strategy, nil
		}
	}
	return nil, nil
}

func (r *fakeStrategyRepo) FindByName(_ context.Context, name string) (*domain.StrategyConfig, error) {
	return r.byName[name], nil
}

func (r *fakeStrategyRepo) ListActive(_ context.Context) ([]*domain.StrategyConfig, error) {
	out := make([]*domain.StrategyConfig, 0, len(r.byName))
	for _, strategy := range r.byName {
		if strategy.Active {
			out = append(out, strategy)
		}
	}
	return out, nil
}

// passthroughTx 直接执行闭包并统计调用次数
type passthroughTx struct {
	calls int
}

func (t *passthroughTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeReportCache struct {
	latest *domain.SimulationRun
}

func (c *fakeReportCache) SetLatest(_ context.Context, run *domain.SimulationRun) error {
	c.latest = run
	return nil
}

func (c *fakeReportCache) GetLatest(_ context.Context) (*domain.SimulationRun, error) {
	return c.latest, nil
}

type recordingPublisher struct {
	topics   []string
	txTopics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ string, _ any) error {
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) PublishInTx(_ context.Context, _ any, topic string, _ string, _ any) error {
	p.txTopics = append(p.txTopics, topic)
	return nil
}

// flatProviderFactory 每天返回相同利率的行情源
type flatProviderFactory struct {
	observations map[domain.PositionKey]domain.RateObservation
}

func (f *flatProviderFactory) NewProvider(_ uint64, _, _ string, days int) domain.RateProvider {
	return &flatRateProvider{days: days, observations: f.observations}
}

type flatRateProvider struct {
	days         int
	observations map[domain.PositionKey]domain.RateObservation
}

func (p *flatRateProvider) RatesFor(_ context.Context, day int) (map[domain.PositionKey]domain.RateObservation, error) {
	if day < 0 || day >= p.days {
		return nil, fmt.Errorf("no rates for day %d", day)
	}
	return p.observations, nil
}

// failingProviderFactory 第一天就拿不到行情
type failingProviderFactory struct{}

func (failingProviderFactory) NewProvider(_ uint64, _, _ string, _ int) domain.RateProvider {
	return failingRateProvider{}
}

type failingRateProvider struct{}

func (failingRateProvider) RatesFor(_ context.Context, day int) (map[domain.PositionKey]domain.RateObservation, error) {
	return nil, fmt.Errorf("rate feed unavailable on day %d", day)
}

type stubMetrics struct {
	called bool
}

func (m *stubMetrics) Compute(_ decimal.Decimal, snapshots []domain.PortfolioSnapshot) domain.RunResults {
	m.called = true
	if len(snapshots) == 0 {
		return domain.RunResults{}
	}
	return domain.RunResults{FinalValue: snapshots[len(snapshots)-1].NetValue}
}

type commandFixture struct {
	service    *CommandService
	runs       *fakeRunRepo
	snapshots  *fakeSnapshotRepo
	strategies *fakeStrategyRepo
	tx         *passthroughTx
	cache      *fakeReportCache
	publisher  *recordingPublisher
	metrics    *stubMetrics
}

func flatObservations() map[domain.PositionKey]domain.RateObservation {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	obs := func(protocol domain.Protocol) domain.RateObservation {
		return domain.RateObservation{
			Protocol:             protocol,
			Asset:                "USDC",
			Timestamp:            ts,
			SupplyRate:           decimal.NewFromFloat(0.05),
			BorrowRate:           decimal.NewFromFloat(0.07),
			LTV:                  decimal.NewFromFloat(0.80),
			LiquidationThreshold: decimal.NewFromFloat(0.85),
			Confidence:           1.0,
		}
	}
	return map[domain.PositionKey]domain.RateObservation{
		{Protocol: domain.ProtocolAaveV3, Asset: "USDC"}:     obs(domain.ProtocolAaveV3),
		{Protocol: domain.ProtocolCompoundV3, Asset: "USDC"}: obs(domain.ProtocolCompoundV3),
	}
}

func newCommandFixture(t *testing.T, factory RateProviderFactory) *commandFixture {
	t.Helper()
	f := &commandFixture{
		runs:       newFakeRunRepo(),
		snapshots:  &fakeSnapshotRepo{},
		strategies: newFakeStrategyRepo(),
		tx:         &passthroughTx{},
		cache:      &fakeReportCache{},
		publisher:  &recordingPublisher{},
		metrics:    &stubMetrics{},
	}
	f.service = NewCommandService(
		f.runs, f.snapshots, f.strategies,
		f.tx, factory, f.metrics,
		f.cache, f.publisher,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func seedStrategy(t *testing.T, f *commandFixture) *domain.StrategyConfig {
	t.Helper()
	strategy, err := domain.NewStrategyConfig("balanced", "60/40 lending split", "medium", 30, []domain.Allocation{
		{Protocol: domain.ProtocolAaveV3, Asset: "USDC", Weight: decimal.NewFromFloat(0.6)},
		{Protocol: domain.ProtocolCompoundV3, Asset: "USDC", Weight: decimal.NewFromFloat(0.4)},
	})
	if err != nil {
		t.Fatalf("NewStrategyConfig: %v", err)
	}
	if err := f.strategies.Create(context.Background(), strategy); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	return strategy
}

func TestStartSimulationCompletesRun(t *testing.T) {
	f := newCommandFixture(t, &flatProviderFactory{observations: flatObservations()})
	seedStrategy(t, f)

	runID, err := f.service.StartSimulation(context.Background(), StartSimulationCommand{
		StrategyName:   "balanced",
		Name:           "smoke",
		Days:           5,
		InitialCapital: decimal.NewFromInt(10000),
	})
	if err != nil {
		t.Fatalf("StartSimulation: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run ID")
	}

	run := f.runs.runs[runID]
	if run == nil {
		t.Fatal("run was not persisted")
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("run status = %s, expected completed", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if len(f.snapshots.saved) != 5 {
		t.Errorf("saved %d snapshots, expected 5", len(f.snapshots.saved))
	}
	if !f.metrics.called {
		t.Error("expected metrics calculator to run")
	}
	if run.FinalValue.LessThanOrEqual(decimal.NewFromInt(10000)) {
		t.Errorf("FinalValue = %v, expected growth over initial capital", run.FinalValue)
	}

	// 快照与完成事件必须共享同一个事务
	if f.tx.calls != 1 {
		t.Errorf("transaction ran %d times, expected 1", f.tx.calls)
	}
	foundCompleted := false
	for _, topic := range f.publisher.txTopics {
		if topic == "treasury.simulation_completed" {
			foundCompleted = true
		}
	}
	if !foundCompleted {
		t.Errorf("completed event not published in tx, topics = %v", f.publisher.txTopics)
	}

	if f.cache.latest == nil || f.cache.latest.RunID != runID {
		t.Error("latest report cache was not updated")
	}
}

func TestStartSimulationValidation(t *testing.T) {
	f := newCommandFixture(t, &flatProviderFactory{observations: flatObservations()})
	strategy := seedStrategy(t, f)

	tests := []struct {
		name string
		cmd  StartSimulationCommand
		want error
	}{
		{
			name: "zero days",
			cmd: StartSimulationCommand{
				StrategyName: "balanced", Name: "bad", Days: 0,
				InitialCapital: decimal.NewFromInt(1000),
			},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "non-positive capital",
			cmd: StartSimulationCommand{
				StrategyName: "balanced", Name: "bad", Days: 10,
				InitialCapital: decimal.Zero,
			},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "unknown strategy",
			cmd: StartSimulationCommand{
				StrategyName: "missing", Name: "bad", Days: 10,
				InitialCapital: decimal.NewFromInt(1000),
			},
			want: domain.ErrStrategyNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.StartSimulation(context.Background(), tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("StartSimulation error = %v, expected %v", err, tt.want)
			}
		})
	}

	strategy.Deactivate()
	if err := f.strategies.Update(context.Background(), strategy); err != nil {
		t.Fatalf("deactivate strategy: %v", err)
	}
	_, err := f.service.StartSimulation(context.Background(), StartSimulationCommand{
		StrategyName: "balanced", Name: "bad", Days: 10,
		InitialCapital: decimal.NewFromInt(1000),
	})
	if !errors.Is(err, domain.ErrInvalidStrategy) {
		t.Fatalf("inactive strategy error = %v, expected ErrInvalidStrategy", err)
	}
}

func TestStartSimulationProviderFailure(t *testing.T) {
	f := newCommandFixture(t, failingProviderFactory{})
	seedStrategy(t, f)

	runID, err := f.service.StartSimulation(context.Background(), StartSimulationCommand{
		StrategyName:   "balanced",
		Name:           "doomed",
		Days:           5,
		InitialCapital: decimal.NewFromInt(10000),
	})
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}
	if runID == "" {
		t.Fatal("run ID should be returned even on failure")
	}

	run := f.runs.runs[runID]
	if run == nil {
		t.Fatal("run was not persisted")
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("run status = %s, expected failed", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Error("expected error message on failed run")
	}
	if f.tx.calls != 0 {
		t.Errorf("transaction ran %d times on failure, expected 0", f.tx.calls)
	}
	if f.cache.latest != nil {
		t.Error("failed run must not reach the report cache")
	}
}

func TestCreateStrategyRejectsDuplicate(t *testing.T) {
	f := newCommandFixture(t, &flatProviderFactory{observations: flatObservations()})

	cmd := CreateStrategyCommand{
		Name:      "conservative",
		RiskLevel: "low",
		Allocations: []domain.Allocation{
			{Protocol: domain.ProtocolAaveV3, Asset: "USDC", Weight: decimal.NewFromInt(1)},
		},
	}
	if _, err := f.service.CreateStrategy(context.Background(), cmd); err != nil {
		t.Fatalf("first CreateStrategy: %v", err)
	}
	_, err := f.service.CreateStrategy(context.Background(), cmd)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate CreateStrategy error = %v", err)
	}
}

func TestSetStrategyActive(t *testing.T) {
	f := newCommandFixture(t, &flatProviderFactory{observations: flatObservations()})
	strategy := seedStrategy(t, f)

	if err := f.service.SetStrategyActive(context.Background(), "balanced", false); err != nil {
		t.Fatalf("SetStrategyActive: %v", err)
	}
	if strategy.Active {
		t.Error("strategy should be inactive")
	}
	if err := f.service.SetStrategyActive(context.Background(), "balanced", true); err != nil {
		t.Fatalf("SetStrategyActive: %v", err)
	}
	if !strategy.Active {
		t.Error("strategy should be active again")
	}

	err := f.service.SetStrategyActive(context.Background(), "missing", true)
	if !errors.Is(err, domain.ErrStrategyNotFound) {
		t.Fatalf("unknown strategy error = %v, expected ErrStrategyNotFound", err)
	}
}
