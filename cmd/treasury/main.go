// Package main 金库模拟服务启动入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	aapp "github.com/wyfcoding/defitreasury/internal/analytics/application"
	adomain "github.com/wyfcoding/defitreasury/internal/analytics/domain"
	ainterfaces "github.com/wyfcoding/defitreasury/internal/analytics/interfaces"
	mdapp "github.com/wyfcoding/defitreasury/internal/marketdata/application"
	mddomain "github.com/wyfcoding/defitreasury/internal/marketdata/domain"
	mdinfra "github.com/wyfcoding/defitreasury/internal/marketdata/infrastructure"
	mdpersistence "github.com/wyfcoding/defitreasury/internal/marketdata/infrastructure/persistence"
	mdinterfaces "github.com/wyfcoding/defitreasury/internal/marketdata/interfaces"
	mdconsumer "github.com/wyfcoding/defitreasury/internal/marketdata/interfaces/consumer"
	tapp "github.com/wyfcoding/defitreasury/internal/treasury/application"
	tdomain "github.com/wyfcoding/defitreasury/internal/treasury/domain"
	tcache "github.com/wyfcoding/defitreasury/internal/treasury/infrastructure/cache"
	tpersistence "github.com/wyfcoding/defitreasury/internal/treasury/infrastructure/persistence"
	tinterfaces "github.com/wyfcoding/defitreasury/internal/treasury/interfaces"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/treasury/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 配置
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 日志
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "treasury",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. 指标
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. 数据库
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&mddomain.RateRecord{},
			&tdomain.StrategyConfig{},
			&tdomain.SimulationRun{},
			&tdomain.SnapshotRecord{},
			&outbox.Message{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Kafka & Outbox
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)
	publisher := outbox.NewPublisher(outboxMgr)

	// 6. Redis
	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	// 7. 市场数据上下文
	rateRepo := mdpersistence.NewGormRateRecordRepository(db.RawDB())
	normalizer := mddomain.NewNormalizer(mddomain.NormalizerConfig{})
	mdCommand := mdapp.NewCommandService(rateRepo, normalizer, publisher, logger.Logger)
	mdQuery := mdapp.NewQueryService(rateRepo)

	kafkaCfg := &cfg.MessageQueue.Kafka
	kafkaCfg.GroupID = "treasury-group"
	kafkaCfg.Topic = mdconsumer.RawRateTopic
	consumer := kafka.NewConsumer(kafkaCfg, logger, metricsImpl)
	rateHandler := mdconsumer.NewRateEventHandler(mdCommand)
	rateHandler.Subscribe(context.Background(), consumer)

	// 8. 金库模拟上下文
	runRepo := tpersistence.NewGormSimulationRunRepository(db.RawDB())
	snapshotRepo := tpersistence.NewGormSnapshotRepository(db.RawDB())
	strategyRepo := tpersistence.NewGormStrategyRepository(db.RawDB())
	reportCache := tcache.NewRedisReportCache(redisCache.GetClient())

	tCommand := tapp.NewCommandService(
		runRepo, snapshotRepo, strategyRepo,
		tpersistence.NewTransactionManager(db.RawDB()),
		&syntheticProviderFactory{},
		&performanceCalculator{},
		reportCache, publisher, logger.Logger,
	)
	tQuery := tapp.NewQueryService(runRepo, snapshotRepo, strategyRepo, reportCache, logger.Logger)

	// 9. 绩效分析上下文
	analyticsQuery := aapp.NewQueryService(&runHistoryBridge{query: tQuery}, logger.Logger)

	// 10. 接口层
	grpcSrv := grpc.NewServer()
	reflection.Register(grpcSrv)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	tinterfaces.NewHTTPHandler(tCommand, tQuery).RegisterRoutes(api)
	mdinterfaces.NewHTTPHandler(mdQuery).RegisterRoutes(api)
	ainterfaces.NewHTTPHandler(analyticsQuery).RegisterRoutes(api)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// 11. 启动
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		slog.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// syntheticProviderFactory 用市场数据上下文的合成生成器构造模拟行情源
type syntheticProviderFactory struct{}

var _ tapp.RateProviderFactory = (*syntheticProviderFactory)(nil)

func (f *syntheticProviderFactory) NewProvider(seed uint64, regime, asset string, days int) tdomain.RateProvider {
	gen := mdinfra.NewGenerator(seed, mdinfra.Regime(regime))
	return &syntheticRateProvider{series: gen.GenerateSeries(asset, days, time.Now().UTC())}
}

// syntheticRateProvider 按天回放预生成的合成行情
type syntheticRateProvider struct {
	series []mdinfra.MarketDay
}

func (p *syntheticRateProvider) RatesFor(_ context.Context, day int) (map[tdomain.PositionKey]tdomain.RateObservation, error) {
	if day < 0 || day >= len(p.series) {
		return nil, fmt.Errorf("no synthetic rates for day %d", day)
	}
	md := p.series[day]
	rates := make(map[tdomain.PositionKey]tdomain.RateObservation, len(md.Observations))
	for protocol, obs := range md.Observations {
		key := tdomain.PositionKey{Protocol: tdomain.Protocol(protocol), Asset: obs.Asset}
		rates[key] = tdomain.RateObservation{
			Protocol:             tdomain.Protocol(obs.Protocol),
			Asset:                obs.Asset,
			Timestamp:            obs.Timestamp,
			SupplyRate:           obs.SupplyRate,
			BorrowRate:           obs.BorrowRate,
			LTV:                  obs.LTV,
			LiquidationThreshold: obs.LiquidationThreshold,
			Confidence:           obs.Confidence,
		}
	}
	return rates, nil
}

// performanceCalculator 用绩效分析领域层为完成的运行计算指标
type performanceCalculator struct{}

var _ tapp.MetricsCalculator = (*performanceCalculator)(nil)

func (performanceCalculator) Compute(initialCapital decimal.Decimal, snapshots []tdomain.PortfolioSnapshot) tdomain.RunResults {
	netValues := make([]decimal.Decimal, 0, len(snapshots))
	indexHistory := make([]decimal.Decimal, 0, len(snapshots)+1)
	indexHistory = append(indexHistory, decimal.NewFromInt(1))
	for _, s := range snapshots {
		netValues = append(netValues, s.NetValue)
		indexHistory = append(indexHistory, s.SharePriceIndex)
	}

	report, err := adomain.ComputeReport(adomain.ReportInput{
		InitialCapital: initialCapital,
		NetValues:      netValues,
		IndexHistory:   indexHistory,
		ElapsedDays:    len(snapshots),
	})
	if err != nil {
		slog.Warn("performance metrics unavailable", "error", err)
		return tdomain.RunResults{}
	}

	return tdomain.RunResults{
		FinalValue:     report.FinalValue,
		TotalReturn:    report.TotalReturn,
		MaxDrawdown:    report.MaxDrawdown,
		WorstDailyLoss: report.WorstDailyLoss,
		SharpeRatio:    decimal.NewFromFloat(report.SharpeRatio),
		Volatility:     decimal.NewFromFloat(report.Volatility),
		WinRate:        decimal.NewFromFloat(report.WinRate),
		AvgDailyReturn: report.AvgDailyReturn,
		BestDay:        report.BestDay,
		WorstDay:       report.WorstDay,
	}
}

// runHistoryBridge 把金库查询服务适配为绩效分析的运行历史来源
type runHistoryBridge struct {
	query *tapp.QueryService
}

var _ aapp.RunHistoryProvider = (*runHistoryBridge)(nil)

func (b *runHistoryBridge) RunSeries(ctx context.Context, runID string) (*aapp.RunSeries, error) {
	run, err := b.query.GetRun(ctx, runID)
	if err != nil || run == nil {
		return nil, err
	}
	snapshots, err := b.query.GetSnapshots(ctx, runID)
	if err != nil {
		return nil, err
	}

	series := &aapp.RunSeries{
		RunID:          run.RunID,
		InitialCapital: run.InitialCapital,
		// 快照逐日生成，实际经过天数以快照数为准
		Days: len(snapshots),
	}
	if len(snapshots) == 0 {
		return series, nil
	}
	series.NetValues = make([]decimal.Decimal, 0, len(snapshots))
	series.IndexHistory = make([]decimal.Decimal, 0, len(snapshots)+1)
	series.IndexHistory = append(series.IndexHistory, decimal.NewFromInt(1))
	for _, s := range snapshots {
		series.NetValues = append(series.NetValues, s.NetValue)
		series.IndexHistory = append(series.IndexHistory, s.SharePriceIndex)
	}
	return series, nil
}
