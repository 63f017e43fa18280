package app

import (
	"log/slog"

	"quoter_go/internal/infra"
	"quoter_go/internal/infra/polymarket"
	"quoter_go/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Client  *polymarket.Client
	Metrics *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logging, DB, API client)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping quoter...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize audit storage
	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Audit database initialized", slog.String("path", cfg.Storage.Path))

	// Surface orders a previous run could not confirm.
	if ids, err := store.UnconfirmedOrders(); err == nil && len(ids) > 0 {
		slog.Warn("⚠️ Unconfirmed orders from a previous run, reconcile manually",
			slog.Int("count", len(ids)),
			slog.Any("local_ids", ids),
		)
	}

	// 4. Trading API client
	b.Client = polymarket.NewClient(cfg)
	b.Metrics = &infra.Metrics{}
	slog.Info("✅ Trading client ready", slog.String("asset_id", cfg.Market.AssetID))

	return nil
}

// Close releases bootstrap-owned resources.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("Audit database close failed", slog.Any("error", err))
		}
	}
}
