package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/frontend/handlers"
	"github.com/cory-johannsen/derby/internal/game/item"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/game/rng"
	"github.com/cory-johannsen/derby/internal/gameserver"
	"github.com/cory-johannsen/derby/internal/observability"
	"github.com/cory-johannsen/derby/internal/scripting"
	"github.com/cory-johannsen/derby/internal/server"
	"github.com/cory-johannsen/derby/internal/storage"
	"github.com/cory-johannsen/derby/internal/storage/postgres"
	"github.com/cory-johannsen/derby/internal/storage/redisstore"
)

// App is the assembled server.
type App struct {
	Lifecycle *server.Lifecycle
	Logger    *zap.Logger
}

var providerSet = wire.NewSet(
	provideLogger,
	provideRegistry,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	observability.NewMetrics,
	provideStore,
	provideCatalog,
	provideRegistryItems,
	provideGates,
	provideVerifier,
	provideRaceOptions,
	provideClock,
	gameserver.NewLocker,
	gameserver.NewRaceService,
	provideMinigameService,
	provideHandler,
	provideRouter,
	provideGRPCServer,
	provideLifecycle,
	wire.Struct(new(App), "*"),
)

func provideLogger(cfg config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.Logging, "gameserver")
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	start := time.Now()
	var st storage.Store
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		st = postgres.NewStore(pool)
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
	default:
		rs, err := redisstore.New(ctx, cfg.Redis, cfg.Store.MaxRetries)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		st = rs
		logger.Info("redis connected",
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}
	return st, cleanup, nil
}

// catalog carries the registry and gates out of a single load.
type catalog struct {
	items *item.Registry
	gates *scripting.Manager
}

func provideCatalog(cfg config.Config, logger *zap.Logger) (catalog, func(), error) {
	items, gates, err := gameserver.LoadCatalog(cfg.Items, logger)
	if err != nil {
		return catalog{}, nil, err
	}
	return catalog{items: items, gates: gates}, gates.Close, nil
}

func provideRegistryItems(c catalog) *item.Registry { return c.items }

func provideGates(c catalog) *scripting.Manager { return c.gates }

func provideVerifier(cfg config.Config) (*auth.Verifier, error) {
	return auth.NewVerifier(cfg.Auth)
}

func provideRaceOptions(cfg config.Config) (gameserver.RaceOptions, error) {
	return gameserver.RaceOptionsFromConfig(cfg.Race)
}

func provideClock() gameserver.Clock { return gameserver.SystemClock{} }

func provideMinigameService(
	cfg config.Config,
	store storage.Store,
	locks *gameserver.Locker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *gameserver.MinigameService {
	limits := minigame.Limits{MinBet: cfg.Games.MinBet, MaxBet: cfg.Games.MaxBet}
	return gameserver.NewMinigameService(store, limits, rng.NewCryptoSource(), locks, metrics, logger)
}

func provideHandler(
	races *gameserver.RaceService,
	games *gameserver.MinigameService,
	store storage.Store,
	logger *zap.Logger,
) *handlers.Handler {
	return handlers.New(races, games, store, logger)
}

func provideRouter(cfg config.Config, h *handlers.Handler, v *auth.Verifier, gatherer prometheus.Gatherer, logger *zap.Logger) *echo.Echo {
	return handlers.NewRouter(h, v, cfg.Auth.CookieName, gatherer, logger)
}

func provideGRPCServer(races *gameserver.RaceService, v *auth.Verifier, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(gameserver.AuthInterceptor(v, logger)))
	gameserver.RegisterRaceServiceServer(srv, gameserver.NewGRPCRaceServer(races, logger))
	return srv
}

func provideLifecycle(
	ctx context.Context,
	cfg config.Config,
	e *echo.Echo,
	grpcSrv *grpc.Server,
	store storage.Store,
	logger *zap.Logger,
) *server.Lifecycle {
	lc := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lc.Add("http", &server.HTTPService{Server: &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      e,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}})
	if cfg.GRPC.Enabled {
		lc.Add("grpc", &server.GRPCService{Server: grpcSrv, Addr: cfg.GRPC.Addr()})
	}
	if p, ok := store.(storage.Purger); ok {
		hk := gameserver.NewHousekeeper(cfg.Race.Retention, logger)
		hk.Register("purge_expired_races", gameserver.PurgeExpiredJob(p, logger))
		lc.Add("housekeeping", housekeepingService(ctx, hk))
	}
	return lc
}

func housekeepingService(ctx context.Context, hk *gameserver.Housekeeper) server.Service {
	ctx, cancel := context.WithCancel(ctx)
	return &server.FuncService{
		StartFn: func() error {
			hk.Run(ctx)
			return nil
		},
		StopFn: func(context.Context) error {
			cancel()
			return nil
		},
	}
}
