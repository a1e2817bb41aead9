package helper

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/yishak-cs/storefront-recs/internal/cache"
	"github.com/yishak-cs/storefront-recs/internal/database"
)

// Config is the service configuration read from the environment
type Config struct {
	Port     string `mapstructure:"app_port" validate:"required,numeric"`
	Env      string `mapstructure:"app_env" validate:"oneof=development production dev prod test"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	DBDriver          string        `mapstructure:"db_driver" validate:"oneof=postgres sqlite"`
	DBDSN             string        `mapstructure:"db_dsn" validate:"required"`
	DBMaxIdleConns    int           `mapstructure:"db_max_idle_conns" validate:"min=0"`
	DBMaxOpenConns    int           `mapstructure:"db_max_open_conns" validate:"min=0"`
	DBConnMaxLifetime time.Duration `mapstructure:"db_conn_max_lifetime"`
	DBSlowThreshold   time.Duration `mapstructure:"db_slow_threshold"`

	Neo4jURI      string `mapstructure:"neo4j_uri"`
	Neo4jUsername string `mapstructure:"neo4j_username"`
	Neo4jPassword string `mapstructure:"neo4j_password"`
	Neo4jDatabase string `mapstructure:"neo4j_database"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"min=0"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`

	TrendingWindowDays int           `mapstructure:"trending_window_days" validate:"min=1"`
	ViewRateLimit      float64       `mapstructure:"view_rate_limit" validate:"gt=0"`
	ViewRateBurst      int           `mapstructure:"view_rate_burst" validate:"min=1"`
	GraphSyncOnStart   bool          `mapstructure:"graph_sync_on_start"`
	GraphSyncInterval  time.Duration `mapstructure:"graph_sync_interval" validate:"min=0"`
	CORSOrigins        []string      `mapstructure:"cors_origins" validate:"min=1"`
}

var defaults = map[string]interface{}{
	"app_port":             "8080",
	"app_env":              "development",
	"log_level":            "info",
	"db_driver":            "postgres",
	"db_dsn":               "",
	"db_max_idle_conns":    10,
	"db_max_open_conns":    50,
	"db_conn_max_lifetime": time.Hour,
	"db_slow_threshold":    200 * time.Millisecond,
	"neo4j_uri":            "",
	"neo4j_username":       "neo4j",
	"neo4j_password":       "",
	"neo4j_database":       "neo4j",
	"redis_addr":           "",
	"redis_password":       "",
	"redis_db":             0,
	"cache_ttl":            5 * time.Minute,
	"trending_window_days": 30,
	"view_rate_limit":      5.0,
	"view_rate_burst":      20,
	"graph_sync_on_start":  false,
	"graph_sync_interval":  15 * time.Minute,
	"cors_origins":         []string{"*"},
}

// LoadConfigFromEnv loads the configuration from environment variables,
// falling back to defaults, and validates it
func LoadConfigFromEnv() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// SQL returns the relational store settings
func (c *Config) SQL() database.SQLConfig {
	return database.SQLConfig{
		Driver:          c.DBDriver,
		DSN:             c.DBDSN,
		MaxIdleConns:    c.DBMaxIdleConns,
		MaxOpenConns:    c.DBMaxOpenConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		SlowThreshold:   c.DBSlowThreshold,
	}
}

// Neo4j returns the graph settings; an empty URI disables the graph
func (c *Config) Neo4j() database.Neo4jConfig {
	return database.Neo4jConfig{
		URI:      c.Neo4jURI,
		Username: c.Neo4jUsername,
		Password: c.Neo4jPassword,
		Database: c.Neo4jDatabase,
	}
}

// Cache returns the Redis cache settings; an empty address disables caching
func (c *Config) Cache() cache.Config {
	return cache.Config{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TTL:      c.CacheTTL,
	}
}

// TrendingWindow is the look-back window for recent sales and views
func (c *Config) TrendingWindow() time.Duration {
	return time.Duration(c.TrendingWindowDays) * 24 * time.Hour
}
