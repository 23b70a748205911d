// Package cli implements the warehousectl operator commands.
package cli

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/AlekseyRodimkin/warehouse/internal/app"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/cache"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/db"
)

// env is shared by the subcommands. Config is loaded before any command runs.
type env struct {
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:          "warehousectl",
		Short:        "Operator tools for the warehouse service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.AddCommand(
		newMigrateCommand(e),
		newImportCommand(e),
		newStatusCommand(e),
		newJobsCommand(e),
		newSeedCommand(e),
	)
	return root
}

// services connects to postgres and, when reachable, redis. Packing lists
// are rendered inline since no worker is involved.
func (e *env) services(ctx context.Context) (*app.Services, func(), error) {
	pool, err := db.New(ctx, e.cfg.Database())
	if err != nil {
		return nil, nil, err
	}
	var redisClient *redis.Client
	if client, err := cache.New(ctx, e.cfg.Redis()); err != nil {
		e.logger.Warn("redis unavailable, running without wave locks", slog.Any("error", err))
	} else {
		redisClient = client
	}
	closeAll := func() {
		pool.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	svc, err := app.BuildServices(app.ServiceDeps{Config: e.cfg, Pool: pool, Redis: redisClient, Logger: e.logger})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}
