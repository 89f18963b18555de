// Package application 市场数据应用层
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defitreasury/internal/marketdata/domain"
	"github.com/wyfcoding/pkg/messagequeue"
)

// historyWindow 归一化时回看的历史观测条数
const historyWindow = 30

// CommandService 市场数据命令服务：归一化并落库原始观测
type CommandService struct {
	repo           domain.RateRecordRepository
	normalizer     *domain.Normalizer
	eventPublisher messagequeue.EventPublisher
	logger         *slog.Logger
}

func NewCommandService(
	repo domain.RateRecordRepository,
	normalizer *domain.Normalizer,
	eventPublisher messagequeue.EventPublisher,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		repo:           repo,
		normalizer:     normalizer,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// IngestRateCommand 原始利率观测
type IngestRateCommand struct {
	Protocol             string
	Asset                string
	SupplyRate           decimal.Decimal
	BorrowRate           decimal.Decimal
	LTV                  decimal.Decimal
	LiquidationThreshold decimal.Decimal
	Timestamp            time.Time
}

// IngestObservation 归一化一条原始观测并持久化，检出异常时发布事件
func (s *CommandService) IngestObservation(ctx context.Context, cmd IngestRateCommand) error {
	obs := domain.NewRateObservation(
		domain.Protocol(cmd.Protocol), cmd.Asset,
		cmd.SupplyRate, cmd.BorrowRate,
		cmd.LTV, cmd.LiquidationThreshold,
		cmd.Timestamp,
	)

	records, err := s.repo.ListRecent(ctx, obs.Protocol, obs.Asset, historyWindow)
	if err != nil {
		return fmt.Errorf("load rate history: %w", err)
	}
	// 仓储按时间倒序返回，归一化需要升序历史
	history := make([]domain.RateObservation, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		history = append(history, records[i].Observation())
	}

	normalized, verdict, err := s.normalizer.Normalize(obs, history, time.Now())
	if err != nil {
		return err
	}

	record := domain.NewRateRecord(obs, normalized, verdict)
	if err := s.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("save rate record: %w", err)
	}

	if verdict.Anomalous {
		event := &domain.RateAnomalyDetectedEvent{
			Protocol:   cmd.Protocol,
			Asset:      cmd.Asset,
			SupplyRate: cmd.SupplyRate,
			BorrowRate: cmd.BorrowRate,
			Reason:     verdict.AnomalyReason,
			Confidence: verdict.Confidence,
			Timestamp:  cmd.Timestamp,
		}
		if err := s.eventPublisher.Publish(ctx, event.EventName(), "", event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish event",
				"event", event.EventName(),
				"error", err)
		}
	}
	return nil
}

// QueryService 市场数据查询服务
type QueryService struct {
	repo domain.RateRecordRepository
}

func NewQueryService(repo domain.RateRecordRepository) *QueryService {
	return &QueryService{repo: repo}
}

// LatestRate 最近一条归一化观测，不存在时返回 nil
func (s *QueryService) LatestRate(ctx context.Context, protocol, asset string) (*domain.RateRecord, error) {
	return s.repo.Latest(ctx, domain.Protocol(protocol), asset)
}

// RateSeries 按时间升序返回最近 limit 条归一化观测
func (s *QueryService) RateSeries(ctx context.Context, protocol, asset string, limit int) ([]*domain.RateRecord, error) {
	records, err := s.repo.ListRecent(ctx, domain.Protocol(protocol), asset, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
