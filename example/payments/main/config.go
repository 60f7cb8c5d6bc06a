package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is loaded from IDEMFLOW_* environment variables
type AppConfig struct {
	Address         string        `mapstructure:"address"`
	LogLevel        string        `mapstructure:"log_level"`
	Backend         string        `mapstructure:"backend"`
	Window          time.Duration `mapstructure:"window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CacheMaxEntries int64  `mapstructure:"cache_max_entries"`
	CacheInner      string `mapstructure:"cache_inner"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	DynamoDBTable  string `mapstructure:"dynamodb_table"`
	AWSRegion      string `mapstructure:"aws_region"`
	StatsdAddr     string `mapstructure:"statsd_addr"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceEnv     string `mapstructure:"service_env"`
	OpeningBalance int64  `mapstructure:"opening_balance"`
}

// Backend names accepted by IDEMFLOW_BACKEND
const (
	BackendMemory   = "memory"
	BackendCache    = "cache"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

func loadConfig() (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("IDEMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("address", ":3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("window", time.Hour)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("cache_max_entries", 100_000)
	v.SetDefault("cache_inner", BackendMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "idemflow")
	v.SetDefault("dynamodb_table", "idemflow")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("statsd_addr", "")
	v.SetDefault("service_name", "idemflow-payments")
	v.SetDefault("service_env", "local")
	v.SetDefault("opening_balance", 10_000)

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.CacheInner = strings.ToLower(strings.TrimSpace(cfg.CacheInner))
	return cfg, nil
}

// durableBackend is the backend that holds results and checkpoints.
// The cache backend only fronts it.
func (c *AppConfig) durableBackend() string {
	if c.Backend == BackendCache {
		return c.CacheInner
	}
	return c.Backend
}
