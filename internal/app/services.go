package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AlekseyRodimkin/warehouse/internal/importer"
	"github.com/AlekseyRodimkin/warehouse/internal/observability"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/cache"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/lock"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/storage"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
	"github.com/AlekseyRodimkin/warehouse/internal/wave/packing"
	"github.com/AlekseyRodimkin/warehouse/report"
)

// ServiceDeps carries the infrastructure shared by the binaries. Redis and
// Metrics are optional.
type ServiceDeps struct {
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Services bundles the wired domain services.
type Services struct {
	Stock       *warehouse.Service
	Waves       *wave.Service
	Importer    *importer.Reconciler
	Documents   *storage.Store
	Packing     *packing.Generator
	Report      *report.Client
	Idempotency *shared.IdempotencyStore
}

// BuildServices wires repositories and services. Packing lists are rendered
// inline until the caller swaps in a queue.
func BuildServices(deps ServiceDeps) (*Services, error) {
	cfg, logger := deps.Config, deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	order, err := warehouse.ParseWithdrawOrder(cfg.WithdrawOrder)
	if err != nil {
		return nil, err
	}
	docs, err := storage.New(cfg.MediaRoot, cfg.MaxUploadSize, cfg.AllowedDocExts)
	if err != nil {
		return nil, err
	}

	var domain *observability.Domain
	if deps.Metrics != nil {
		domain = deps.Metrics.Domain()
	}
	audit := shared.NewAuditLogger(deps.Pool)
	idem := shared.NewIdempotencyStore(deps.Pool)
	summary := cache.NewVersioned(deps.Redis, "warehouse:summary", cfg.SummaryCacheTTL)

	stock := warehouse.NewService(warehouse.NewRepository(deps.Pool), audit, idem, summary, domain, warehouse.ServiceConfig{
		WithdrawOrder: order,
		Reserved: warehouse.ReservedTitles{
			Inbound:  cfg.ReservedInbound,
			Outbound: cfg.ReservedOutbound,
			New:      cfg.ReservedNew,
		},
	}, logger)

	waveDeps := wave.Dependencies{Documents: docs, Audit: audit, Metrics: domain, Logger: logger}
	if deps.Redis != nil {
		waveDeps.Locker = lock.NewLocker(deps.Redis, cfg.WaveLockTTL)
	}
	waves := wave.NewService(wave.NewRepository(deps.Pool), stock, waveDeps)

	client := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
	renderer, err := packing.NewRenderer(client)
	if err != nil {
		return nil, fmt.Errorf("packing renderer: %w", err)
	}
	generator := packing.NewGenerator(packing.GeneratorConfig{
		Loader:      waves,
		Renderer:    renderer,
		Store:       docs,
		CompanyName: cfg.CompanyName,
		Logger:      logger,
	})
	waves.SetPackingList(generator)

	return &Services{
		Stock:       stock,
		Waves:       waves,
		Importer:    importer.NewReconciler(waves, docs, idem, domain, logger),
		Documents:   docs,
		Packing:     generator,
		Report:      client,
		Idempotency: idem,
	}, nil
}
