// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	StockfishPath string `yaml:"stockfish_path"`
	PoolSize      int    `yaml:"pool_size"`
	MaxQueueDepth int    `yaml:"max_queue_depth"`
	EngineThreads int    `yaml:"engine_threads"`
	EngineHashMB  int    `yaml:"engine_hash_mb"`

	QuickNodes int `yaml:"quick_nodes"`
	FullNodes  int `yaml:"full_nodes"`
	MultiPV    int `yaml:"multipv"`

	OracleEndpoint   string `yaml:"oracle_endpoint"`
	OracleAPIKey     string `yaml:"oracle_api_key"`
	OracleModel      string `yaml:"oracle_model"`
	OracleTimeoutSec int    `yaml:"oracle_timeout_sec"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
}

// Load reads the YAML file named by COACHD_CONFIG when set, then applies
// environment overrides and defaults. Only the engine binary path is
// mandatory; everything else has a workable default or optional wiring.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:       ":8080",
		MaxQueueDepth:    64,
		EngineThreads:    1,
		EngineHashMB:     128,
		QuickNodes:       50000,
		FullNodes:        1000000,
		MultiPV:          5,
		OracleModel:      "gpt-4o-mini",
		OracleTimeoutSec: 8,
	}

	if path := strings.TrimSpace(os.Getenv("COACHD_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.StockfishPath, "STOCKFISH_PATH")
	setInt(&cfg.PoolSize, "ENGINE_POOL_SIZE")
	setInt(&cfg.MaxQueueDepth, "ENGINE_MAX_QUEUE_DEPTH")
	setInt(&cfg.EngineThreads, "ENGINE_THREADS")
	setInt(&cfg.EngineHashMB, "ENGINE_HASH_MB")

	setInt(&cfg.QuickNodes, "EVAL_QUICK_NODES")
	setInt(&cfg.FullNodes, "EVAL_FULL_NODES")
	setInt(&cfg.MultiPV, "EVAL_MULTIPV")

	setString(&cfg.OracleEndpoint, "AI_API_ENDPOINT")
	setString(&cfg.OracleAPIKey, "AI_API_KEY")
	setString(&cfg.OracleModel, "AI_MODEL_NAME")
	setInt(&cfg.OracleTimeoutSec, "AI_TIMEOUT_SEC")

	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
