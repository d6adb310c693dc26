package usecase

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"planning-poker/internal/domain"
)

const (
	DefaultStaleRetention   = 30 * 24 * time.Hour
	DefaultStaleConcurrency = 4
)

type RoomStore interface {
	PutRoom(ctx context.Context, room domain.Room) (domain.Room, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	SetVote(ctx context.Context, roomID, userKey, vote string) error
	SetCardsRevealed(ctx context.Context, roomID string, isRevealed bool) error
	DeleteRoom(ctx context.Context, roomID string) (int, error)
	StaleRoomIDs(ctx context.Context, cutoff time.Time) iter.Seq2[string, error]
}

type RoomService struct {
	store            RoomStore
	logger           *slog.Logger
	retention        time.Duration
	staleConcurrency int
	now              func() time.Time
}

type CreateRoomOutput struct {
	RoomID     string
	HostKey    string
	ValidSizes []string
	IsRevealed bool
}

type AddUserInput struct {
	RoomID   string
	Username string
	UserID   string
}

type AddUserOutput struct {
	RoomID   string
	Username string
	UserKey  string
	UserID   string
}

type SetVoteInput struct {
	RoomID  string
	UserKey string
	Vote    string
}

func NewRoomService(store RoomStore, logger *slog.Logger, retention time.Duration, staleConcurrency int) (*RoomService, error) {
	if store == nil {
		return nil, errors.New("usecase: room store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = DefaultStaleRetention
	}
	if staleConcurrency <= 0 {
		staleConcurrency = DefaultStaleConcurrency
	}
	return &RoomService{
		store:            store,
		logger:           logger,
		retention:        retention,
		staleConcurrency: staleConcurrency,
		now:              time.Now,
	}, nil
}

// CreateRoom opens a room with the default vote sizes and cards hidden.
func (s *RoomService) CreateRoom(ctx context.Context) (CreateRoomOutput, error) {
	roomID, err := generateID(roomIDLength)
	if err != nil {
		return CreateRoomOutput{}, newError(ErrorInternal, "id_generation_error", err)
	}
	hostKey, err := generateID(hostKeyLength)
	if err != nil {
		return CreateRoomOutput{}, newError(ErrorInternal, "id_generation_error", err)
	}
	room, err := s.store.PutRoom(ctx, domain.Room{
		RoomID:     roomID,
		HostKey:    hostKey,
		ValidSizes: domain.DefaultValidSizes(),
	})
	if err != nil {
		return CreateRoomOutput{}, storeError("dynamodb_put_room_error", err)
	}
	return CreateRoomOutput{
		RoomID:     room.RoomID,
		HostKey:    room.HostKey,
		ValidSizes: room.ValidSizes,
		IsRevealed: room.IsRevealed,
	}, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return domain.Room{}, newError(ErrorInvalidInput, "empty_room_id", nil)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, storeError("dynamodb_get_room_error", err)
	}
	return room, nil
}

// AddUser joins a new participant to an existing room. The room is read
// first so that an unknown id writes nothing; the write itself is
// conditioned on the room again, so a room deleted in between still leaves
// no orphaned participant behind.
func (s *RoomService) AddUser(ctx context.Context, in AddUserInput) (AddUserOutput, error) {
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		return AddUserOutput{}, newError(ErrorInvalidInput, "empty_room_id", nil)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return AddUserOutput{}, newError(ErrorInvalidInput, "empty_username", nil)
	}

	exists, err := s.store.RoomExists(ctx, roomID)
	if err != nil {
		return AddUserOutput{}, storeError("dynamodb_room_exists_error", err)
	}
	if !exists {
		return AddUserOutput{}, newError(ErrorNotFound, "room_not_found", nil)
	}

	userKey, err := generateID(userKeyLength)
	if err != nil {
		return AddUserOutput{}, newError(ErrorInternal, "id_generation_error", err)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = newUUID()
	}

	p, err := s.store.AddParticipant(ctx, domain.Participant{
		RoomID:   roomID,
		UserKey:  userKey,
		UserID:   userID,
		Username: username,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return AddUserOutput{}, newError(ErrorNotFound, "room_deleted", err)
		}
		return AddUserOutput{}, storeError("dynamodb_add_participant_error", err)
	}
	return AddUserOutput{
		RoomID:   p.RoomID,
		Username: p.Username,
		UserKey:  p.UserKey,
		UserID:   p.UserID,
	}, nil
}

// SetVote records a vote as given. Membership in the room's sizes is the
// caller's concern.
func (s *RoomService) SetVote(ctx context.Context, in SetVoteInput) error {
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		return newError(ErrorInvalidInput, "empty_room_id", nil)
	}
	userKey := strings.TrimSpace(in.UserKey)
	if userKey == "" {
		return newError(ErrorInvalidInput, "empty_user_key", nil)
	}
	if err := s.store.SetVote(ctx, roomID, userKey, in.Vote); err != nil {
		return storeError("dynamodb_set_vote_error", err)
	}
	return nil
}

func (s *RoomService) SetCardsRevealed(ctx context.Context, roomID string, isRevealed bool) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return newError(ErrorInvalidInput, "empty_room_id", nil)
	}
	if err := s.store.SetCardsRevealed(ctx, roomID, isRevealed); err != nil {
		return storeError("dynamodb_set_revealed_error", err)
	}
	return nil
}

// DeleteRoom removes a room and its participants. An unknown room is not
// an error.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return newError(ErrorInvalidInput, "empty_room_id", nil)
	}
	n, err := s.store.DeleteRoom(ctx, roomID)
	if err != nil {
		return storeError("dynamodb_delete_room_error", err)
	}
	s.logger.Debug("room deleted", "room_id", roomID, "items", n)
	return nil
}

// DeleteStaleRooms deletes every room not updated within the retention
// window and returns how many were removed. Rooms are deleted concurrently,
// at most staleConcurrency at a time. A failed room does not stop the
// others; the first failure is returned alongside the count.
func (s *RoomService) DeleteStaleRooms(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)

	var (
		deleted  atomic.Int64
		g        errgroup.Group
		firstErr error
	)
	g.SetLimit(s.staleConcurrency)

	for roomID, err := range s.store.StaleRoomIDs(ctx, cutoff) {
		if err != nil {
			firstErr = err
			break
		}
		g.Go(func() error {
			n, err := s.store.DeleteRoom(ctx, roomID)
			if err != nil {
				s.logger.Warn("stale room deletion failed", "room_id", roomID, "err", err)
				return err
			}
			deleted.Add(1)
			s.logger.Debug("stale room deleted", "room_id", roomID, "items", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	count := int(deleted.Load())
	if firstErr != nil {
		return count, storeError("dynamodb_stale_cleanup_error", firstErr)
	}
	return count, nil
}
