package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/gateway"
	"github.com/Gotyqqq/Rucord/internal/moderation"
	"github.com/Gotyqqq/Rucord/internal/roles"
	"github.com/Gotyqqq/Rucord/internal/server"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/config"
	"github.com/Gotyqqq/Rucord/pkg/logging"
	"github.com/Gotyqqq/Rucord/pkg/state/statemanager"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stateManager := statemanager.NewInMemoryManager(logger)
	resolver := access.NewResolver(db, cfg.Server.MasterUserIDs, logger)
	mod := moderation.NewService(db, resolver, logger)
	roleSvc := roles.NewService(db, resolver, logger)
	gw := gateway.New(stateManager, db, resolver, mod, roleSvc,
		cfg.Presence.IdleAfter, cfg.Presence.SweepInterval, logger)
	go gw.Presence().Run(ctx)

	app := server.NewApp(logger, ctx, cfg, stateManager, gw)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
