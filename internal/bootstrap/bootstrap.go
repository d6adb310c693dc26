package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"planning-poker/internal/config"
	"planning-poker/internal/integrations/paramstore"
	"planning-poker/internal/repository"
	"planning-poker/internal/usecase"
)

// App holds the wired services shared by every entry point.
type App struct {
	Config      config.Config
	Repo        *repository.Client
	Rooms       *usecase.RoomService
	Connections *usecase.ConnectionService
}

// NewJSONLogger returns the structured logger used on Lambda.
func NewJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Load reads configuration from the environment, installs a JSON logger as
// the process default, and wires the services against AWS.
func Load(ctx context.Context, w io.Writer) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewJSONLogger(w, cfg.Level())
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	return Setup(ctx, cfg, awsCfg, logger)
}

// Setup applies Parameter Store overrides and builds the services.
func Setup(ctx context.Context, cfg config.Config, awsCfg aws.Config, logger *slog.Logger) (*App, error) {
	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create SSM client: %w", err)
		}
		if err := cfg.ApplyParameters(ctx, params); err != nil {
			return nil, err
		}
	}

	repo, err := repository.New(NewDynamoDBClient(awsCfg, cfg.Endpoint()), cfg.StateTable,
		repository.WithLogger(logger),
		repository.WithPageSize(cfg.QueryPageSize),
		repository.WithConnectionTTL(cfg.ConnectionTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create repository: %w", err)
	}
	rooms, err := usecase.NewRoomService(repo, logger, cfg.StaleRoomRetention, cfg.StaleDeleteConcurrency)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create room service: %w", err)
	}
	conns, err := usecase.NewConnectionService(repo, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create connection service: %w", err)
	}

	logger.Debug("services ready",
		"table", cfg.StateTable,
		"endpoint", cfg.Endpoint(),
		"stale_room_retention", cfg.StaleRoomRetention.String(),
	)
	return &App{Config: cfg, Repo: repo, Rooms: rooms, Connections: conns}, nil
}

// NewDynamoDBClient builds a DynamoDB client, pointing it at endpoint when
// one is given (LocalStack or DynamoDB Local).
func NewDynamoDBClient(awsCfg aws.Config, endpoint string) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
