package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"planning-poker/internal/domain"
	"planning-poker/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	allowedMethods    = "OPTIONS,GET,POST,PUT,DELETE"
	allowedHeaders    = "Content-Type,X-Correlation-Id"
)

type RoomUseCase interface {
	CreateRoom(ctx context.Context) (usecase.CreateRoomOutput, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	AddUser(ctx context.Context, in usecase.AddUserInput) (usecase.AddUserOutput, error)
	SetVote(ctx context.Context, in usecase.SetVoteInput) error
	SetCardsRevealed(ctx context.Context, roomID string, isRevealed bool) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Handler serves the REST routes behind a single API Gateway proxy
// integration.
type Handler struct {
	rooms         RoomUseCase
	allowedOrigin string
	logger        *slog.Logger
}

type createRoomResponse struct {
	RoomID     string   `json:"roomId"`
	HostKey    string   `json:"hostKey"`
	ValidSizes []string `json:"validSizes"`
	IsRevealed bool     `json:"isRevealed"`
}

type participantResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Vote     string `json:"vote"`
	HasVoted bool   `json:"hasVoted"`
}

type roomResponse struct {
	RoomID       string                `json:"roomId"`
	ValidSizes   []string              `json:"validSizes"`
	IsRevealed   bool                  `json:"isRevealed"`
	Participants []participantResponse `json:"participants"`
}

type addUserRequest struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type addUserResponse struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	UserKey  string `json:"userKey"`
	UserID   string `json:"userId"`
}

type setRevealedRequest struct {
	IsRevealed *bool `json:"isRevealed"`
}

type setVoteRequest struct {
	Vote *string `json:"vote"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(rooms RoomUseCase, allowedOrigin string) (*Handler, error) {
	if rooms == nil {
		return nil, errors.New("handler: room use case must not be nil")
	}
	if strings.TrimSpace(allowedOrigin) == "" {
		allowedOrigin = "*"
	}
	return &Handler{rooms: rooms, allowedOrigin: allowedOrigin, logger: slog.Default()}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	resp := h.route(ctx, event)
	if resp.err != nil {
		code, reason := errorDetails(resp.err)
		resp.status = statusFor(code)
		resp.body = errorResponse{Error: string(code)}
		logger.Warn("request failed", "status", resp.status, "error_code", code, "reason", reason, "err", resp.err)
	} else {
		logger.Info("request handled", "status", resp.status)
	}
	return h.response(correlationID, resp.status, resp.body), nil
}

type result struct {
	status int
	body   any
	err    error
}

func ok(status int, body any) result { return result{status: status, body: body} }
func fail(err error) result          { return result{err: err} }

func invalid(reason string) result {
	return fail(&usecase.Error{Code: usecase.ErrorInvalidInput, Reason: reason})
}

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errRouteNotFound    = errors.New("route not found")
)

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest) result {
	if event.HTTPMethod == http.MethodOptions {
		return ok(http.StatusNoContent, nil)
	}

	segs := pathSegments(event)
	if len(segs) == 0 || segs[0] != "rooms" {
		return fail(errRouteNotFound)
	}
	body, err := requestBody(event)
	if err != nil {
		return invalid("invalid_body_encoding")
	}

	switch {
	case len(segs) == 1:
		if event.HTTPMethod != http.MethodPost {
			return fail(errMethodNotAllowed)
		}
		return h.createRoom(ctx)
	case len(segs) == 2:
		switch event.HTTPMethod {
		case http.MethodGet:
			return h.getRoom(ctx, segs[1])
		case http.MethodPut:
			return h.setRevealed(ctx, segs[1], body)
		case http.MethodDelete:
			return h.deleteRoom(ctx, segs[1])
		}
		return fail(errMethodNotAllowed)
	case len(segs) == 3 && segs[2] == "users":
		if event.HTTPMethod != http.MethodPost {
			return fail(errMethodNotAllowed)
		}
		return h.addUser(ctx, segs[1], body)
	case len(segs) == 4 && segs[2] == "users":
		if event.HTTPMethod != http.MethodPut {
			return fail(errMethodNotAllowed)
		}
		return h.setVote(ctx, segs[1], segs[3], body)
	}
	return fail(errRouteNotFound)
}

func (h *Handler) createRoom(ctx context.Context) result {
	out, err := h.rooms.CreateRoom(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(http.StatusCreated, createRoomResponse{
		RoomID:     out.RoomID,
		HostKey:    out.HostKey,
		ValidSizes: out.ValidSizes,
		IsRevealed: out.IsRevealed,
	})
}

func (h *Handler) getRoom(ctx context.Context, roomID string) result {
	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return fail(err)
	}
	out := roomResponse{
		RoomID:       room.RoomID,
		ValidSizes:   room.ValidSizes,
		IsRevealed:   room.IsRevealed,
		Participants: make([]participantResponse, 0, len(room.Participants)),
	}
	for _, p := range room.Participants {
		out.Participants = append(out.Participants, participantResponse{
			UserID:   p.UserID,
			Username: p.Username,
			Vote:     p.Vote,
			HasVoted: p.HasVoted(),
		})
	}
	return ok(http.StatusOK, out)
}

func (h *Handler) setRevealed(ctx context.Context, roomID, body string) result {
	var req setRevealedRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return invalid("invalid_json")
	}
	if req.IsRevealed == nil {
		return invalid("missing_is_revealed")
	}
	if err := h.rooms.SetCardsRevealed(ctx, roomID, *req.IsRevealed); err != nil {
		return fail(err)
	}
	return ok(http.StatusNoContent, nil)
}

func (h *Handler) deleteRoom(ctx context.Context, roomID string) result {
	if err := h.rooms.DeleteRoom(ctx, roomID); err != nil {
		return fail(err)
	}
	return ok(http.StatusNoContent, nil)
}

func (h *Handler) addUser(ctx context.Context, roomID, body string) result {
	var req addUserRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return invalid("invalid_json")
	}
	out, err := h.rooms.AddUser(ctx, usecase.AddUserInput{
		RoomID:   roomID,
		Username: req.Username,
		UserID:   req.UserID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(http.StatusCreated, addUserResponse{
		RoomID:   out.RoomID,
		Username: out.Username,
		UserKey:  out.UserKey,
		UserID:   out.UserID,
	})
}

func (h *Handler) setVote(ctx context.Context, roomID, userKey, body string) result {
	var req setVoteRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return invalid("invalid_json")
	}
	if req.Vote == nil {
		return invalid("missing_vote")
	}
	// Rooms are only ever created with the default sizes.
	if !domain.ValidVote(domain.DefaultValidSizes(), *req.Vote) {
		return invalid("invalid_vote")
	}
	err := h.rooms.SetVote(ctx, usecase.SetVoteInput{RoomID: roomID, UserKey: userKey, Vote: *req.Vote})
	if err != nil {
		return fail(err)
	}
	return ok(http.StatusNoContent, nil)
}

func (h *Handler) response(correlationID string, status int, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		correlationHeader:              correlationID,
		"Access-Control-Allow-Origin":  h.allowedOrigin,
		"Access-Control-Allow-Methods": allowedMethods,
		"Access-Control-Allow-Headers": allowedHeaders,
	}
	if body == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("failed to marshal response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	headers["Content-Type"] = "application/json"
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(raw)}
}

// pathSegments prefers the greedy proxy parameter, which excludes any
// stage or base path, and falls back to the raw path.
func pathSegments(event events.APIGatewayProxyRequest) []string {
	path := event.Path
	if proxy, ok := event.PathParameters["proxy"]; ok {
		path = proxy
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func requestBody(event events.APIGatewayProxyRequest) (string, error) {
	if !event.IsBase64Encoded {
		return event.Body, nil
	}
	raw, err := base64.StdEncoding.DecodeString(event.Body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type errorCode string

const (
	codeRouteNotFound    errorCode = "ROUTE_NOT_FOUND"
	codeMethodNotAllowed errorCode = "METHOD_NOT_ALLOWED"
)

func errorDetails(err error) (errorCode, string) {
	switch {
	case errors.Is(err, errRouteNotFound):
		return codeRouteNotFound, "unknown_route"
	case errors.Is(err, errMethodNotAllowed):
		return codeMethodNotAllowed, "unsupported_method"
	}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		return errorCode(ucErr.Code), ucErr.Reason
	}
	return errorCode(usecase.ErrorInternal), "unexpected_error"
}

func statusFor(code errorCode) int {
	switch code {
	case errorCode(usecase.ErrorInvalidInput):
		return http.StatusBadRequest
	case errorCode(usecase.ErrorNotFound), codeRouteNotFound:
		return http.StatusNotFound
	case codeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case errorCode(usecase.ErrorConditionFailed):
		return http.StatusConflict
	case errorCode(usecase.ErrorStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
