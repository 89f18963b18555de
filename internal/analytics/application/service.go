// Package application 绩效分析应用层
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/defitreasury/internal/analytics/domain"
)

// RunSeries 一次模拟运行的净值与指数历史
type RunSeries struct {
	RunID          string
	InitialCapital decimal.Decimal
	NetValues      []decimal.Decimal
	IndexHistory   []decimal.Decimal
	Days           int
}

// RunHistoryProvider 查询模拟运行历史，运行不存在时返回 nil
type RunHistoryProvider interface {
	RunSeries(ctx context.Context, runID string) (*RunSeries, error)
}

// QueryService 绩效分析查询服务
type QueryService struct {
	runs   RunHistoryProvider
	logger *slog.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(runs RunHistoryProvider, logger *slog.Logger) *QueryService {
	return &QueryService{runs: runs, logger: logger}
}

// ListBenchmarks 返回基准目录，category 非空时按类别过滤
func (s *QueryService) ListBenchmarks(ctx context.Context, category string) []domain.Benchmark {
	if category != "" {
		return domain.BenchmarksByCategory(category)
	}
	return domain.AllBenchmarks()
}

// GetBenchmark 按类型查询基准定义
func (s *QueryService) GetBenchmark(ctx context.Context, benchmarkType string) (domain.Benchmark, error) {
	return domain.GetBenchmark(domain.BenchmarkType(benchmarkType))
}

// RunReport 由运行历史计算绩效报告，运行不存在时返回 nil
func (s *QueryService) RunReport(ctx context.Context, runID string, riskFreeRate float64) (*domain.PerformanceReport, error) {
	series, err := s.runs.RunSeries(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run series: %w", err)
	}
	if series == nil {
		return nil, nil
	}
	return domain.ComputeReport(domain.ReportInput{
		InitialCapital: series.InitialCapital,
		NetValues:      series.NetValues,
		IndexHistory:   series.IndexHistory,
		ElapsedDays:    series.Days,
		RiskFreeRate:   riskFreeRate,
	})
}

// CompareRunQuery 运行与基准对比请求
type CompareRunQuery struct {
	RunID        string
	Benchmark    string
	Seed         uint64
	RiskFreeRate float64
}

// CompareRun 把运行的日收益与合成基准序列对比，运行不存在时返回 nil。
// 基准序列按请求种子生成，同一种子下结果可复现。
func (s *QueryService) CompareRun(ctx context.Context, query CompareRunQuery) (*domain.BenchmarkComparison, error) {
	benchmark, err := domain.GetBenchmark(domain.BenchmarkType(query.Benchmark))
	if err != nil {
		return nil, err
	}

	series, err := s.runs.RunSeries(ctx, query.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run series: %w", err)
	}
	if series == nil {
		return nil, nil
	}

	report, err := domain.ComputeReport(domain.ReportInput{
		InitialCapital: series.InitialCapital,
		NetValues:      series.NetValues,
		IndexHistory:   series.IndexHistory,
		ElapsedDays:    series.Days,
		RiskFreeRate:   query.RiskFreeRate,
	})
	if err != nil {
		return nil, err
	}

	values := series.NetValues
	if series.InitialCapital.GreaterThan(decimal.Zero) {
		values = append([]decimal.Decimal{series.InitialCapital}, series.NetValues...)
	}
	strategyReturns := domain.DailyReturns(values)
	if len(strategyReturns) == 0 {
		return nil, fmt.Errorf("run %s has no usable daily returns", query.RunID)
	}

	benchmarkReturns, err := domain.GenerateBenchmarkReturns(benchmark.Type, len(strategyReturns), query.Seed)
	if err != nil {
		return nil, err
	}

	comparison, err := domain.CompareToBenchmark(domain.ComparisonInput{
		BenchmarkName:    benchmark.Name,
		StrategyReturns:  strategyReturns,
		BenchmarkReturns: benchmarkReturns,
		StrategyAPY:      report.AnnualizedReturn.InexactFloat64(),
		BenchmarkAPY:     benchmark.TypicalAPY.InexactFloat64(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "benchmark comparison completed",
		"run_id", query.RunID,
		"benchmark", benchmark.Type,
		"alpha", comparison.Alpha,
		"information_ratio", comparison.InformationRatio,
	)
	return comparison, nil
}
