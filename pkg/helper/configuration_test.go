package helper

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "host=localhost dbname=shop")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBDriver != "postgres" {
		t.Fatalf("defaults: got port=%s driver=%s", cfg.Port, cfg.DBDriver)
	}
	if cfg.TrendingWindow() != 30*24*time.Hour {
		t.Fatalf("trending window: got=%s", cfg.TrendingWindow())
	}
	if cfg.Neo4j().Enabled() {
		t.Fatal("neo4j should be disabled without a URI")
	}
	if cfg.GraphSyncInterval != 15*time.Minute {
		t.Fatalf("graph sync interval: got=%s", cfg.GraphSyncInterval)
	}
	if cfg.Cache().TTL != 5*time.Minute {
		t.Fatalf("cache ttl: got=%s", cfg.Cache().TTL)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:shop.db")
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("TRENDING_WINDOW_DAYS", "7")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("GRAPH_SYNC_ON_START", "true")
	t.Setenv("GRAPH_SYNC_INTERVAL", "0s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.SQL().Driver != "sqlite" || cfg.SQL().DSN != "file:shop.db" {
		t.Fatalf("sql: got=%+v", cfg.SQL())
	}
	if !cfg.Neo4j().Enabled() || cfg.Neo4j().Username != "neo4j" {
		t.Fatalf("neo4j: got=%+v", cfg.Neo4j())
	}
	if cfg.TrendingWindow() != 7*24*time.Hour || cfg.CacheTTL != 90*time.Second || !cfg.GraphSyncOnStart || cfg.GraphSyncInterval != 0 {
		t.Fatalf("overrides: got=%+v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing dsn":    {},
		"unknown driver": {"DB_DSN": "x", "DB_DRIVER": "mysql"},
		"zero window":    {"DB_DSN": "x", "TRENDING_WINDOW_DAYS": "0"},
		"bad port":       {"DB_DSN": "x", "APP_PORT": "http"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
