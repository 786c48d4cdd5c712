package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/gavelhouse/gavel/gavel"
	"github.com/gavelhouse/gavel/gavel/broadcast"
	"github.com/gavelhouse/gavel/gavel/database"
	"github.com/gavelhouse/gavel/gavel/database/repositories"
	"github.com/gavelhouse/gavel/gavel/engine"
	"github.com/gavelhouse/gavel/gavel/logger"
	"github.com/gavelhouse/gavel/gavel/pricecache"
	"github.com/gavelhouse/gavel/gavel/stream"
	"github.com/gavelhouse/gavel/web"
	"github.com/gavelhouse/gavel/web/handlers"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncDB := flag.Bool("sync-db", false, "create tables and indexes on startup")
	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	// Optional .env overlay for credentials kept out of the TOML file.
	_ = godotenv.Load()

	handler := logger.NewHandler("Gavel")
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting Gavel bidding engine",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit))

	cfg, err := gavel.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("type", "err"), slog.String("error", err.Error()))
		os.Exit(1)
	}
	handler.SetLevel(cfg.Log.Level)
	applyEnvOverrides(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := database.New(dbCtx, database.DBConfig{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Database:     cfg.DB.Database,
		PoolSize:     cfg.DB.PoolSize,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxLifetime:  cfg.DB.MaxLifetime,
	})
	dbCancel()
	if err != nil {
		slog.Error("Failed to connect to database", slog.String("type", "err"), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if *shouldSyncDB {
		if err := db.InitializeSchema(ctx); err != nil {
			slog.Error("Failed to initialize schema", slog.String("type", "err"), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	auctions := repositories.NewAuctionRepository(db.BunDB())
	lots := repositories.NewLotRepository(db.BunDB())
	ledger := repositories.NewLedgerRepository(db.BunDB())
	proxies := repositories.NewProxyRepository(db.BunDB())
	bidders := repositories.NewBidderRepository(db.BunDB())

	hub := broadcast.NewHub(slog.Default())
	notifiers := engine.MultiNotifier{broadcast.NewNotifier(hub, slog.Default())}

	var publisher *stream.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = stream.New(cfg.NATS.URL, cfg.NATS.Stream, slog.Default())
		if err != nil {
			slog.Error("Failed to connect event stream", slog.String("type", "err"), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	var cache *pricecache.Cache
	if cfg.Redis.Addr != "" {
		cache, err = pricecache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, slog.Default())
		if err != nil {
			slog.Error("Failed to connect price cache", slog.String("type", "err"), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cache.Close()
		notifiers = append(notifiers, cache)
	}

	tiers := make([]engine.IncrementTier, len(cfg.Engine.IncrementTiers))
	for i, t := range cfg.Engine.IncrementTiers {
		tiers[i] = engine.IncrementTier{Threshold: t.Threshold, Step: t.Step}
	}
	eng, err := engine.New(engine.Config{
		SoftCloseWindow:    cfg.Engine.SoftCloseWindow(),
		SoftCloseExtension: cfg.Engine.SoftCloseExtension(),
		LockTimeout:        cfg.Engine.LockTimeout(),
		DefaultIncrement:   cfg.Engine.DefaultIncrement,
		Tiers:              tiers,
	}, auctions, lots, ledger, proxies, bidders, notifiers, slog.Default())
	if err != nil {
		slog.Error("Failed to build engine", slog.String("type", "err"), slog.String("error", err.Error()))
		os.Exit(1)
	}

	clock := engine.NewClock(auctions, lots, eng, cfg.Engine.SweepInterval(), slog.Default())

	app := web.NewApp(&handlers.WebApp{
		DB:       db,
		Engine:   eng,
		Auctions: auctions,
		Lots:     lots,
		Ledger:   ledger,
		Bidders:  bidders,
		Cache:    cache,
		Version:  version,
		Commit:   commit,
	})
	wsServer := broadcast.NewServer(cfg.Server.WSAddr, hub, slog.Default())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return clock.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("REST API listening",
			slog.String("type", "sys"),
			slog.String("addr", cfg.Server.HTTPAddr))
		return app.Listen(cfg.Server.HTTPAddr)
	})
	g.Go(func() error {
		return wsServer.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("API shutdown error", slog.String("type", "err"), slog.String("error", err.Error()))
		}
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Event stream shutdown error", slog.String("type", "err"), slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("Service exited with error", slog.String("type", "err"), slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Shutdown complete", slog.String("type", "sys"))
}

// applyEnvOverrides lets secrets come from the environment instead of
// the config file.
func applyEnvOverrides(cfg *gavel.Config) {
	if v := os.Getenv("GAVEL_DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("GAVEL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GAVEL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
}
