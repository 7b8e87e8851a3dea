// Package config provides Viper-based configuration loading for the race server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Name identifies this instance in logs.
	Name string `mapstructure:"name"`
	// ShutdownTimeout bounds graceful shutdown of the listeners.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig holds the HTTP API listener settings.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GRPCConfig holds the gRPC listener settings.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// StoreConfig selects the balance and race state backend.
type StoreConfig struct {
	// Backend is "redis" or "postgres".
	Backend string `mapstructure:"backend"`
	// MaxRetries bounds optimistic transaction retries on contention.
	MaxRetries int `mapstructure:"max_retries"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	// Secret is the master secret session signing keys are derived from.
	Secret string `mapstructure:"secret"`
	// Issuer is the expected "iss" claim.
	Issuer string `mapstructure:"issuer"`
	// CookieName is the session cookie read when no bearer token is sent.
	CookieName string `mapstructure:"cookie_name"`
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// RaceConfig bounds the races the server creates and settles.
type RaceConfig struct {
	Entities  int           `mapstructure:"entities"`
	MinBet    int64         `mapstructure:"min_bet"`
	MaxBet    int64         `mapstructure:"max_bet"`
	Countdown time.Duration `mapstructure:"countdown"`
	Duration  time.Duration `mapstructure:"duration"`
	// Retention is how long race state survives in the store.
	Retention time.Duration `mapstructure:"retention"`
	// PayoutMultiplier is the decimal gross return on a winning pick.
	PayoutMultiplier string `mapstructure:"payout_multiplier"`
	// AllowSpectatorItems lets callers other than the owner buy items.
	AllowSpectatorItems bool `mapstructure:"allow_spectator_items"`
}

// GamesConfig bounds minigame wagers.
type GamesConfig struct {
	MinBet int64 `mapstructure:"min_bet"`
	MaxBet int64 `mapstructure:"max_bet"`
}

// ItemsConfig locates the item catalog.
type ItemsConfig struct {
	// Dir holds *.yaml item definitions. Empty uses the built-in catalog.
	Dir string `mapstructure:"dir"`
	// GateInstructionLimit bounds each Lua gate call; 0 uses the default.
	GateInstructionLimit int `mapstructure:"gate_instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Race     RaceConfig     `mapstructure:"race"`
	Games    GamesConfig    `mapstructure:"games"`
	Items    ItemsConfig    `mapstructure:"items"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	validators := []func() error{
		func() error { return validateServer(c.Server) },
		func() error { return validateHTTP(c.HTTP) },
		func() error { return validateGRPC(c.GRPC) },
		func() error { return validateStore(c.Store, c.Redis, c.Database) },
		func() error { return validateLogging(c.Logging) },
		func() error { return validateAuth(c.Auth) },
		func() error { return validateRace(c.Race) },
		func() error { return validateGames(c.Games) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Name == "" {
		return errors.New("server.name must not be empty")
	}
	if s.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	return nil
}

func validatePort(name string, port int) string {
	if port < 1 || port > 65535 {
		return fmt.Sprintf("%s must be 1-65535, got %d", name, port)
	}
	return ""
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if msg := validatePort("http.port", h.Port); msg != "" {
		errs = append(errs, msg)
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateGRPC(g GRPCConfig) error {
	if !g.Enabled {
		return nil
	}
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if msg := validatePort("grpc.port", g.Port); msg != "" {
		errs = append(errs, msg)
	}
	return joinErrs(errs)
}

func validateStore(s StoreConfig, r RedisConfig, d DatabaseConfig) error {
	var errs []string
	if s.MaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("store.max_retries must be >= 1, got %d", s.MaxRetries))
	}
	switch s.Backend {
	case "redis":
		if r.Addr == "" {
			errs = append(errs, "redis.addr must not be empty")
		}
		if r.DB < 0 {
			errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
		}
	case "postgres":
		if err := validateDatabase(d); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be one of [redis, postgres], got %q", s.Backend))
	}
	return joinErrs(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if msg := validatePort("database.port", d.Port); msg != "" {
		errs = append(errs, msg)
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if len(a.Secret) < 16 {
		errs = append(errs, "auth.secret must be at least 16 characters")
	}
	if a.CookieName == "" {
		errs = append(errs, "auth.cookie_name must not be empty")
	}
	if a.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive")
	}
	return joinErrs(errs)
}

func validateRace(r RaceConfig) error {
	var errs []string
	if r.Entities < 2 {
		errs = append(errs, fmt.Sprintf("race.entities must be >= 2, got %d", r.Entities))
	}
	if r.MinBet < 1 {
		errs = append(errs, fmt.Sprintf("race.min_bet must be >= 1, got %d", r.MinBet))
	}
	if r.MaxBet < r.MinBet {
		errs = append(errs, "race.max_bet must not be below race.min_bet")
	}
	if r.Countdown < 0 {
		errs = append(errs, "race.countdown must not be negative")
	}
	if r.Duration <= 0 {
		errs = append(errs, "race.duration must be positive")
	}
	if r.Retention <= r.Countdown+r.Duration {
		errs = append(errs, "race.retention must exceed race.countdown + race.duration")
	}
	if m, err := decimal.NewFromString(r.PayoutMultiplier); err != nil || m.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("race.payout_multiplier must be a decimal >= 1, got %q", r.PayoutMultiplier))
	}
	return joinErrs(errs)
}

func validateGames(g GamesConfig) error {
	if g.MinBet < 1 || g.MaxBet < g.MinBet {
		return fmt.Errorf("games bet range [%d, %d] is invalid", g.MinBet, g.MaxBet)
	}
	return nil
}

// Load reads configuration from the given file path, applies .env and
// environment variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DERBY_ prefix
	v.SetEnvPrefix("DERBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "derby")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.max_retries", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "derby")
	v.SetDefault("database.password", "derby")
	v.SetDefault("database.name", "derby")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.issuer", "derby")
	v.SetDefault("auth.cookie_name", "session")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("race.entities", 5)
	v.SetDefault("race.min_bet", 100)
	v.SetDefault("race.max_bet", 10000)
	v.SetDefault("race.countdown", "5s")
	v.SetDefault("race.duration", "9s")
	v.SetDefault("race.retention", "10m")
	v.SetDefault("race.payout_multiplier", "2")
	v.SetDefault("race.allow_spectator_items", false)

	v.SetDefault("games.min_bet", 100)
	v.SetDefault("games.max_bet", 10000)

	v.SetDefault("items.dir", "")
	v.SetDefault("items.gate_instruction_limit", 0)
}
