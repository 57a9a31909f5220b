package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/analyze"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/coach"
	appcfg "github.com/ai-chess-training/LLM-ChessCoach/internal/config"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/engine"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/obslog"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/server"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/session"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	eng, err := engine.NewClient(engine.ClientConfig{
		BinaryPath:    cfg.StockfishPath,
		PoolSize:      cfg.PoolSize,
		MaxQueueDepth: cfg.MaxQueueDepth,
		Threads:       cfg.EngineThreads,
		HashMB:        cfg.EngineHashMB,
	}, logger)
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}
	defer func() { _ = eng.Close() }()

	cache := buildEvalCache(cfg, logger)
	reports, dbClose := buildReports(cfg, logger)
	if dbClose != nil {
		defer dbClose()
	}

	oracleTimeout := time.Duration(cfg.OracleTimeoutSec) * time.Second
	var oracle coach.Oracle
	if cfg.OracleEndpoint != "" && cfg.OracleAPIKey != "" {
		oracle = coach.NewChatOracle(coach.OracleConfig{
			Endpoint:       cfg.OracleEndpoint,
			APIKey:         cfg.OracleAPIKey,
			Model:          cfg.OracleModel,
			RequestTimeout: oracleTimeout,
		}, logger)
		logger.Info("coaching oracle enabled", zap.String("model", cfg.OracleModel))
	} else {
		logger.Info("coaching oracle not configured, rule fallback only")
	}
	moveCoach := coach.New(oracle, oracleTimeout, logger)

	budgets := session.Budgets{
		QuickNodes: cfg.QuickNodes,
		FullNodes:  cfg.FullNodes,
		MultiPV:    cfg.MultiPV,
	}
	sessions := session.NewManager(session.NewRegistry(), eng, moveCoach, cache, budgets, logger)
	analyzer := analyze.New(eng, moveCoach, cache, reports, analyze.Config{
		FullNodes: cfg.FullNodes,
		MultiPV:   cfg.MultiPV,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewRouter(sessions, analyzer, reports, eng, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("coachd listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("pool_size", eng.PoolSize()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	logger.Info("coachd stopped")
}

func buildEvalCache(cfg *appcfg.AppConfig, logger *zap.Logger) store.EvalCache {
	if cfg.RedisURL == "" {
		logger.Info("eval cache in memory only")
		return store.NewMemoryEvalCache()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, eval cache in memory only", zap.Error(err))
		return store.NewMemoryEvalCache()
	}
	logger.Info("eval cache backed by redis")
	return store.NewRedisEvalCache(redis.NewClient(opts))
}

func buildReports(cfg *appcfg.AppConfig, logger *zap.Logger) (store.Reports, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("analysis archive in memory only")
		return store.NewMemoryReports(), nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database unavailable, analysis archive in memory only", zap.Error(err))
		return store.NewMemoryReports(), nil
	}
	db.SetMaxOpenConns(8)
	logger.Info("analysis archive backed by postgres")
	return store.NewReports(db), func() { _ = db.Close() }
}
