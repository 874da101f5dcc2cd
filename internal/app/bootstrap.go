package app

import (
	"log/slog"

	"profit_go/internal/infra"
	"profit_go/internal/infra/storage"
	"profit_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Pipeline *service.Pipeline
	Diffs    *service.DiffService
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB,
// providers, pipeline).
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Profit Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. External providers
	oracle := infra.NewPriceOracle(cfg, store)
	estimator := infra.NewCoinEstimator(cfg)
	aggregator := infra.NewPayoutAggregator(cfg)

	// 5. Snapshot pipeline
	b.Pipeline = service.NewPipeline(store, oracle, estimator, aggregator, service.RunParams{
		ElectricityUSDPerKWh: cfg.Run.ElectricityUSDPerKWh,
		PoolFeePct:           cfg.Run.PoolFeePct,
		HostingUSDPerDay:     cfg.Run.HostingUSDPerDay,
		MaxConcurrentFetches: cfg.Run.MaxConcurrentFetches,
		CandidateCoinCap:     cfg.Run.CandidateCoinCap,
		BatchSize:            cfg.Run.BatchSize,
	}, logger)
	b.Diffs = service.NewDiffService(store)
	slog.Info("✅ Snapshot pipeline ready")

	return nil
}
