package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/finledger/collab/internal/db"
)

// Config holds all server settings.
type Config struct {
	Server   ServerConfig
	Database db.Config
	Gateway  GatewayConfig
	Bus      BusConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GatewayConfig holds subscription gateway policy.
type GatewayConfig struct {
	MaxSubscriptionsPerUser int
}

// BusConfig holds change bus tuning.
type BusConfig struct {
	BufferSize int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: db.DefaultConfig(),
		Gateway: GatewayConfig{
			MaxSubscriptionsPerUser: 10,
		},
		Bus: BusConfig{
			BufferSize: 64,
		},
	}
}

// Load reads config.yaml from configPath, layered over defaults, with
// environment overrides (COLLAB_DATABASE_HOST and friends).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("COLLAB")

	v.BindEnv("server.addr")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("gateway.max_subscriptions_per_user")
	v.BindEnv("bus.buffer_size")

	// A missing config file is fine: defaults + env overrides apply.
	_ = v.ReadInConfig()

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("gateway.max_subscriptions_per_user") {
		cfg.Gateway.MaxSubscriptionsPerUser = v.GetInt("gateway.max_subscriptions_per_user")
	}
	if v.IsSet("bus.buffer_size") {
		cfg.Bus.BufferSize = v.GetInt("bus.buffer_size")
	}

	return cfg, nil
}
