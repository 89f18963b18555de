package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/defitreasury/internal/analytics/domain"
)

type fakeRunHistory struct {
	series map[string]*RunSeries
	err    error
}

func (f *fakeRunHistory) RunSeries(_ context.Context, runID string) (*RunSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series[runID], nil
}

func newQueryFixture(series map[string]*RunSeries) *QueryService {
	return NewQueryService(&fakeRunHistory{series: series}, slog.New(slog.DiscardHandler))
}

func risingSeries() *RunSeries {
	return &RunSeries{
		RunID:          "run-1",
		InitialCapital: decimal.NewFromInt(10000),
		NetValues: []decimal.Decimal{
			decimal.NewFromInt(10100),
			decimal.NewFromInt(10200),
			decimal.NewFromInt(10300),
		},
		IndexHistory: []decimal.Decimal{
			decimal.NewFromInt(1),
			decimal.NewFromFloat(1.01),
			decimal.NewFromFloat(1.02),
			decimal.NewFromFloat(1.03),
		},
		Days: 3,
	}
}

func TestListBenchmarksFiltersByCategory(t *testing.T) {
	s := newQueryFixture(nil)

	all := s.ListBenchmarks(context.Background(), "")
	if len(all) != 5 {
		t.Fatalf("ListBenchmarks() returned %d entries, expected 5", len(all))
	}
	defi := s.ListBenchmarks(context.Background(), "DeFi")
	if len(defi) != 3 {
		t.Fatalf("ListBenchmarks(DeFi) returned %d entries, expected 3", len(defi))
	}
	for _, b := range defi {
		if b.Category != "DeFi" {
			t.Errorf("benchmark %s has category %s", b.Type, b.Category)
		}
	}
}

func TestRunReportMissingRun(t *testing.T) {
	s := newQueryFixture(nil)

	report, err := s.RunReport(context.Background(), "nope", 0)
	if err != nil {
		t.Fatalf("RunReport: %v", err)
	}
	if report != nil {
		t.Fatal("expected nil report for unknown run")
	}
}

func TestRunReportComputesFromSeries(t *testing.T) {
	s := newQueryFixture(map[string]*RunSeries{"run-1": risingSeries()})

	report, err := s.RunReport(context.Background(), "run-1", 0.04)
	if err != nil {
		t.Fatalf("RunReport: %v", err)
	}
	if report == nil {
		t.Fatal("expected report")
	}
	if report.Days != 3 {
		t.Errorf("Days = %d, expected 3", report.Days)
	}
	if !report.TotalReturn.Equal(decimal.NewFromFloat(0.03)) {
		t.Errorf("TotalReturn = %v, expected 0.03", report.TotalReturn)
	}
	if !report.TimeWeightedReturn.Equal(decimal.NewFromFloat(0.03)) {
		t.Errorf("TimeWeightedReturn = %v, expected 0.03", report.TimeWeightedReturn)
	}
	if report.WinRate != 1 {
		t.Errorf("WinRate = %v, expected 1", report.WinRate)
	}
}

func TestRunReportProviderError(t *testing.T) {
	s := NewQueryService(&fakeRunHistory{err: errors.New("db down")}, slog.New(slog.DiscardHandler))

	_, err := s.RunReport(context.Background(), "run-1", 0)
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestCompareRunUnknownBenchmark(t *testing.T) {
	s := newQueryFixture(map[string]*RunSeries{"run-1": risingSeries()})

	_, err := s.CompareRun(context.Background(), CompareRunQuery{RunID: "run-1", Benchmark: "btc_mining"})
	if !errors.Is(err, domain.ErrUnknownBenchmark) {
		t.Fatalf("error = %v, expected ErrUnknownBenchmark", err)
	}
}

func TestCompareRunMissingRun(t *testing.T) {
	s := newQueryFixture(nil)

	comparison, err := s.CompareRun(context.Background(), CompareRunQuery{RunID: "nope", Benchmark: "treasury_bill"})
	if err != nil {
		t.Fatalf("CompareRun: %v", err)
	}
	if comparison != nil {
		t.Fatal("expected nil comparison for unknown run")
	}
}

func TestCompareRunReproducible(t *testing.T) {
	s := newQueryFixture(map[string]*RunSeries{"run-1": risingSeries()})
	query := CompareRunQuery{RunID: "run-1", Benchmark: "treasury_bill", Seed: 42}

	first, err := s.CompareRun(context.Background(), query)
	if err != nil {
		t.Fatalf("CompareRun: %v", err)
	}
	if first == nil {
		t.Fatal("expected comparison")
	}
	if first.BenchmarkName != "US Treasury Bills (3-month)" {
		t.Errorf("BenchmarkName = %q", first.BenchmarkName)
	}
	if first.BenchmarkAPY != 0.045 {
		t.Errorf("BenchmarkAPY = %v, expected 0.045", first.BenchmarkAPY)
	}

	second, err := s.CompareRun(context.Background(), query)
	if err != nil {
		t.Fatalf("CompareRun repeat: %v", err)
	}
	// 同一种子下基准序列与对比结果必须可复现
	if first.Alpha != second.Alpha || first.TrackingError != second.TrackingError ||
		first.InformationRatio != second.InformationRatio {
		t.Errorf("comparison not reproducible: %+v vs %+v", first, second)
	}
}
