package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defitreasury/internal/marketdata/application"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
)

// RawRateTopic 原始利率观测主题
const RawRateTopic = "market.rates.raw"

type RateEventHandler struct {
	command *application.CommandService
}

func NewRateEventHandler(command *application.CommandService) *RateEventHandler {
	return &RateEventHandler{command: command}
}

func (h *RateEventHandler) HandleRawRate(ctx context.Context, msg kafkago.Message) error {
	var event struct {
		Protocol             string `json:"protocol"`
		Asset                string `json:"asset"`
		SupplyRate           string `json:"supply_rate"`
		BorrowRate           string `json:"borrow_rate"`
		LTV                  string `json:"ltv"`
		LiquidationThreshold string `json:"liquidation_threshold"`
		Timestamp            int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	supplyRate, _ := decimal.NewFromString(event.SupplyRate)
	borrowRate, _ := decimal.NewFromString(event.BorrowRate)
	ltv, _ := decimal.NewFromString(event.LTV)
	liqThreshold, _ := decimal.NewFromString(event.LiquidationThreshold)
	slog.Info("Handling raw rate event", "protocol", event.Protocol, "asset", event.Asset, "supply_rate", supplyRate.String())

	return h.command.IngestObservation(ctx, application.IngestRateCommand{
		Protocol:             event.Protocol,
		Asset:                event.Asset,
		SupplyRate:           supplyRate,
		BorrowRate:           borrowRate,
		LTV:                  ltv,
		LiquidationThreshold: liqThreshold,
		Timestamp:            time.Unix(event.Timestamp, 0),
	})
}

// Subscribe 注册消费者订阅
func (h *RateEventHandler) Subscribe(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.HandleRawRate)
}
