package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"planning-poker/internal/integrations/paramstore"
)

const (
	localstackPort       = 4566
	staleRetentionParam  = "/stale_room_retention"
	defaultAllowedOrigin = "*"
	defaultDevListenAddr = ":3001"
)

// Config is read once at start-up by every entry point.
type Config struct {
	StateTable             string        `env:"STATE_TABLE,required,notEmpty"`
	ParamPrefix            string        `env:"PARAM_PREFIX"`
	StaleRoomRetention     time.Duration `env:"STALE_ROOM_RETENTION"     envDefault:"720h"`
	StaleDeleteConcurrency int           `env:"STALE_DELETE_CONCURRENCY" envDefault:"4"`
	QueryPageSize          int32         `env:"QUERY_PAGE_SIZE"          envDefault:"100"`
	ConnectionTTL          time.Duration `env:"CONNECTION_TTL"           envDefault:"24h"`
	LocalstackHostname     string        `env:"LOCALSTACK_HOSTNAME"`
	DynamoDBEndpoint       string        `env:"DYNAMODB_ENDPOINT"`
	LogLevel               string        `env:"LOG_LEVEL"                envDefault:"info"`
	AllowedOrigin          string        `env:"ALLOWED_ORIGIN"           envDefault:"*"`
	DevListenAddr          string        `env:"DEV_LISTEN_ADDR"          envDefault:":3001"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if strings.TrimSpace(cfg.AllowedOrigin) == "" {
		cfg.AllowedOrigin = defaultAllowedOrigin
	}
	if strings.TrimSpace(cfg.DevListenAddr) == "" {
		cfg.DevListenAddr = defaultDevListenAddr
	}
	if cfg.StaleRoomRetention <= 0 {
		return Config{}, fmt.Errorf("config: STALE_ROOM_RETENTION must be positive, got %s", cfg.StaleRoomRetention)
	}
	if cfg.StaleDeleteConcurrency <= 0 {
		return Config{}, fmt.Errorf("config: STALE_DELETE_CONCURRENCY must be positive, got %d", cfg.StaleDeleteConcurrency)
	}
	if cfg.QueryPageSize < 0 {
		return Config{}, fmt.Errorf("config: QUERY_PAGE_SIZE must not be negative, got %d", cfg.QueryPageSize)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Endpoint returns the DynamoDB endpoint override, or "" for the regional
// default. An explicit endpoint wins over the LocalStack host.
func (c Config) Endpoint() string {
	if ep := strings.TrimSpace(c.DynamoDBEndpoint); ep != "" {
		return ep
	}
	if host := strings.TrimSpace(c.LocalstackHostname); host != "" {
		return fmt.Sprintf("http://%s:%d", host, localstackPort)
	}
	return ""
}

// Level returns the configured log level. Load has already validated it.
func (c Config) Level() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

type DurationGetter interface {
	GetDuration(ctx context.Context, name string) (time.Duration, error)
}

// ApplyParameters overlays values kept in Parameter Store under
// ParamPrefix. A missing parameter keeps the environment value.
func (c *Config) ApplyParameters(ctx context.Context, params DurationGetter) error {
	if c.ParamPrefix == "" || params == nil {
		return nil
	}
	retention, err := params.GetDuration(ctx, c.ParamPrefix+staleRetentionParam)
	switch {
	case errors.Is(err, paramstore.ErrParameterNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("config: load stale room retention: %w", err)
	}
	c.StaleRoomRetention = retention
	return nil
}
