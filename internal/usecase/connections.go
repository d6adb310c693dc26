package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"planning-poker/internal/domain"
)

type ConnectionStore interface {
	PutConnection(ctx context.Context, connectionID string) (domain.Connection, error)
	DeleteConnection(ctx context.Context, connectionID string) error
}

type ConnectionService struct {
	store  ConnectionStore
	logger *slog.Logger
}

func NewConnectionService(store ConnectionStore, logger *slog.Logger) (*ConnectionService, error) {
	if store == nil {
		return nil, errors.New("usecase: connection store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{store: store, logger: logger}, nil
}

func (s *ConnectionService) ConnectWebSocket(ctx context.Context, connectionID string) error {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return newError(ErrorInvalidInput, "empty_connection_id", nil)
	}
	conn, err := s.store.PutConnection(ctx, connectionID)
	if err != nil {
		return storeError("dynamodb_put_connection_error", err)
	}
	s.logger.Info("websocket connected", "connection_id", conn.ConnectionID, "connected_on", conn.ConnectedOn)
	return nil
}

// DisconnectWebSocket forgets a connection. Unknown ids succeed.
func (s *ConnectionService) DisconnectWebSocket(ctx context.Context, connectionID string) error {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return newError(ErrorInvalidInput, "empty_connection_id", nil)
	}
	if err := s.store.DeleteConnection(ctx, connectionID); err != nil {
		return storeError("dynamodb_delete_connection_error", err)
	}
	s.logger.Info("websocket disconnected", "connection_id", connectionID)
	return nil
}
