package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const (
	routeConnect    = "$connect"
	routeDisconnect = "$disconnect"
)

type ConnectionUseCase interface {
	ConnectWebSocket(ctx context.Context, connectionID string) error
	DisconnectWebSocket(ctx context.Context, connectionID string) error
}

// WebSocketHandler tracks connection lifecycle events. Messages on any
// other route are accepted and ignored.
type WebSocketHandler struct {
	conns  ConnectionUseCase
	logger *slog.Logger
}

func NewWebSocketHandler(conns ConnectionUseCase) (*WebSocketHandler, error) {
	if conns == nil {
		return nil, errors.New("handler: connection use case must not be nil")
	}
	return &WebSocketHandler{conns: conns, logger: slog.Default()}, nil
}

func (h *WebSocketHandler) Handle(ctx context.Context, event events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	routeKey := event.RequestContext.RouteKey
	connectionID := event.RequestContext.ConnectionID
	logger := h.logger.With("route_key", routeKey, "connection_id", connectionID)

	var err error
	switch routeKey {
	case routeConnect:
		err = h.conns.ConnectWebSocket(ctx, connectionID)
	case routeDisconnect:
		err = h.conns.DisconnectWebSocket(ctx, connectionID)
	default:
		logger.Debug("ignoring websocket route")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	}
	if err != nil {
		code, reason := errorDetails(err)
		status := statusFor(code)
		logger.Warn("websocket event failed", "status", status, "error_code", code, "reason", reason, "err", err)
		return events.APIGatewayProxyResponse{StatusCode: status}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}
