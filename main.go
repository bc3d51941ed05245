package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"codeduel-server/api"
	"codeduel-server/config"
	"codeduel-server/judge"
	"codeduel-server/loghandler"
	"codeduel-server/match"
	"codeduel-server/matchmaking"
	"codeduel-server/problems"
	"codeduel-server/storage"
	"codeduel-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err2 := godotenv.Load("server/.env"); err2 != nil {
			slog.Info("no .env file found, using environment variables")
		}
	}

	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo)))

	cfg := config.Load()

	if cfg.AuthBaseURL == "" {
		slog.Warn("AUTH_BASE_URL is not set, only the dev token will be accepted", "tag", "main")
	}
	slog.Info("configuration loaded", "tag", "main",
		"port", cfg.Port,
		"matchmakingIntervalMs", cfg.MatchmakingIntervalMS,
		"baseRatingDiff", cfg.BaseRatingDiff,
		"duelDurationSec", cfg.DuelDurationSec,
		"winThreshold", cfg.WinThreshold)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.DatabaseURL, cfg.InitialRating)
	if err != nil {
		slog.Error("connecting to Postgres", "tag", "main", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if store == nil {
		slog.Warn("DATABASE_URL is not set, running without persistence", "tag", "main")
	}

	live, err := storage.NewLiveStore(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("connecting to Redis", "tag", "main", "err", err)
		os.Exit(1)
	}
	defer live.Close()
	if live == nil {
		slog.Warn("REDIS_URL is not set, live match snapshots disabled", "tag", "main")
	}

	catalog, err := problems.Load(cfg.ProblemsFile)
	if err != nil {
		slog.Error("loading problem catalog", "tag", "main", "file", cfg.ProblemsFile, "err", err)
		os.Exit(1)
	}
	slog.Info("problem catalog loaded", "tag", "main", "count", catalog.Len())

	j := judge.NewClient(cfg.JudgeBaseURL, cfg.JudgeAPIKey, cfg.JudgeModel,
		time.Duration(cfg.JudgeTimeoutMS)*time.Millisecond)

	manager := match.NewManager(cfg, store, live, j, catalog)

	pool := matchmaking.NewPool()
	scheduler := matchmaking.NewScheduler(cfg, pool, manager)
	go scheduler.Run(ctx)

	registry := ws.NewRegistry(cfg, store, pool, manager)

	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(cfg, store, live, catalog, j)
	handler.Routes(router)
	router.GET("/duel", gin.WrapF(registry.ServeWS))

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("server listening", "tag", "main", "addr", addr)
	if err := router.Run(addr); err != nil {
		slog.Error("server stopped", "tag", "main", "err", err)
		os.Exit(1)
	}
}
