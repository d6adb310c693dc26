package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

type StaleRoomDeleter interface {
	DeleteStaleRooms(ctx context.Context) (int, error)
}

// CleanupHandler runs the scheduled stale-room sweep.
type CleanupHandler struct {
	rooms  StaleRoomDeleter
	logger *slog.Logger
}

func NewCleanupHandler(rooms StaleRoomDeleter) (*CleanupHandler, error) {
	if rooms == nil {
		return nil, errors.New("handler: stale room deleter must not be nil")
	}
	return &CleanupHandler{rooms: rooms, logger: slog.Default()}, nil
}

// Handle returns the sweep error so that the scheduler's retry policy
// applies; rooms already deleted stay deleted.
func (h *CleanupHandler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	logger := h.logger.With("event_id", event.ID, "scheduled_at", event.Time)
	n, err := h.rooms.DeleteStaleRooms(ctx)
	if err != nil {
		code, reason := errorDetails(err)
		logger.Error("stale room cleanup failed", "deleted", n, "error_code", code, "reason", reason, "err", err)
		return err
	}
	logger.Info("stale room cleanup finished", "deleted", n)
	return nil
}
