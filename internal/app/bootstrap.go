package app

import (
	"log/slog"
	"os"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
	"risk_go/internal/infra/broker"
	"risk_go/internal/infra/journal"
	"risk_go/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Catalog *domain.Catalog
	Journal *journal.Store
	Session *broker.Session
	Broker  *broker.Client
	Window  *infra.TradingWindow
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping risk engine...")

	configPath := os.Getenv("RISK_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	catalog, err := domain.LoadCatalog(cfg.Instruments.MasterPath)
	if err != nil {
		return err
	}
	b.Catalog = catalog
	slog.Info("✅ Instrument master loaded", slog.Int("instruments", catalog.Len()))

	journalStore, err := journal.NewStore("data/journals")
	if err != nil {
		return err
	}
	b.Journal = journalStore
	slog.Info("✅ Journal store ready")

	session, err := broker.LoadSession(cfg.Broker.TokenPath)
	if err != nil {
		return err
	}
	b.Session = session
	b.Broker = broker.NewClient(cfg, session)
	slog.Info("✅ Broker gateway client ready", slog.String("baseURL", cfg.Broker.BaseURL))

	b.Window = infra.NewTradingWindow(cfg)

	return nil
}

// Close releases storage resources.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Error("storage close failed", slog.Any("error", err))
		}
	}
}
