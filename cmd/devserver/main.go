// Package main provides the all-in-one development server. It runs the HTTP
// API against an in-process miniredis, seeds player balances, and prints a
// session token per seeded player.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/frontend/handlers"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/game/rng"
	"github.com/cory-johannsen/derby/internal/gameserver"
	"github.com/cory-johannsen/derby/internal/observability"
	"github.com/cory-johannsen/derby/internal/server"
	"github.com/cory-johannsen/derby/internal/storage/redisstore"
)

type seedUser struct {
	id     string
	points int64
}

func parseUsers(spec string) ([]seedUser, error) {
	var out []seedUser
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, pts, ok := strings.Cut(part, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("user %q: want id:points", part)
		}
		n, err := strconv.ParseInt(pts, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("user %q: points must be a non-negative integer", part)
		}
		out = append(out, seedUser{id: id, points: n})
	}
	return out, nil
}

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	users := flag.String("users", "alice:50000,bob:50000", "comma-separated id:points balances to seed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	seeds, err := parseUsers(*users)
	if err != nil {
		log.Fatalf("parsing -users: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "devserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	mr, err := miniredis.Run()
	if err != nil {
		logger.Fatal("starting miniredis", zap.Error(err))
	}
	defer mr.Close()

	ctx := context.Background()
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg.Store.MaxRetries)
	defer store.Close()

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		logger.Fatal("creating verifier", zap.Error(err))
	}
	for _, u := range seeds {
		if err := store.SetBalance(ctx, u.id, u.points); err != nil {
			logger.Fatal("seeding balance", zap.String("user_id", u.id), zap.Error(err))
		}
		token, err := verifier.Issue(u.id, u.id, auth.RolePlayer)
		if err != nil {
			logger.Fatal("issuing token", zap.String("user_id", u.id), zap.Error(err))
		}
		fmt.Printf("%s (%d points): %s\n", u.id, u.points, token)
	}

	items, gates, err := gameserver.LoadCatalog(cfg.Items, logger)
	if err != nil {
		logger.Fatal("loading items", zap.Error(err))
	}
	defer gates.Close()

	opts, err := gameserver.RaceOptionsFromConfig(cfg.Race)
	if err != nil {
		logger.Fatal("race options", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	locks := gameserver.NewLocker()
	races := gameserver.NewRaceService(store, items, gates, opts, gameserver.SystemClock{}, locks, metrics, logger)
	games := gameserver.NewMinigameService(store,
		minigame.Limits{MinBet: cfg.Games.MinBet, MaxBet: cfg.Games.MaxBet},
		rng.NewCryptoSource(), locks, metrics, logger)

	h := handlers.New(races, games, store, logger)
	e := handlers.NewRouter(h, verifier, cfg.Auth.CookieName, reg, logger)

	lc := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lc.Add("http", &server.HTTPService{Server: &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}})

	logger.Info("dev server ready",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("redis_addr", mr.Addr()),
		zap.Int("seeded_users", len(seeds)),
	)
	if err := lc.Run(ctx); err != nil {
		logger.Error("dev server exited with error", zap.Error(err))
	}
}
