package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"planning-poker/internal/domain"
	"planning-poker/internal/usecase"
)

type stubRooms struct {
	err error

	createOut usecase.CreateRoomOutput
	room      domain.Room
	addOut    usecase.AddUserOutput

	calls     []string
	roomID    string
	revealed  bool
	addInput  usecase.AddUserInput
	voteInput usecase.SetVoteInput
}

func (s *stubRooms) CreateRoom(_ context.Context) (usecase.CreateRoomOutput, error) {
	s.calls = append(s.calls, "CreateRoom")
	return s.createOut, s.err
}

func (s *stubRooms) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.calls = append(s.calls, "GetRoom")
	s.roomID = roomID
	return s.room, s.err
}

func (s *stubRooms) AddUser(_ context.Context, in usecase.AddUserInput) (usecase.AddUserOutput, error) {
	s.calls = append(s.calls, "AddUser")
	s.addInput = in
	return s.addOut, s.err
}

func (s *stubRooms) SetVote(_ context.Context, in usecase.SetVoteInput) error {
	s.calls = append(s.calls, "SetVote")
	s.voteInput = in
	return s.err
}

func (s *stubRooms) SetCardsRevealed(_ context.Context, roomID string, isRevealed bool) error {
	s.calls = append(s.calls, "SetCardsRevealed")
	s.roomID = roomID
	s.revealed = isRevealed
	return s.err
}

func (s *stubRooms) DeleteRoom(_ context.Context, roomID string) error {
	s.calls = append(s.calls, "DeleteRoom")
	s.roomID = roomID
	return s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc RoomUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc, "https://poker.example.com")
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, "*")
	require.Error(t, err)

	h, err := NewHandler(&stubRooms{}, " ")
	require.NoError(t, err)
	require.Equal(t, "*", h.allowedOrigin)
}

func TestHandle_CreateRoom(t *testing.T) {
	uc := &stubRooms{createOut: usecase.CreateRoomOutput{
		RoomID:     "Ab12Cd",
		HostKey:    "hk01",
		ValidSizes: domain.DefaultValidSizes(),
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/rooms", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := parseBody[createRoomResponse](t, resp.Body)
	require.Equal(t, "Ab12Cd", out.RoomID)
	require.Equal(t, "hk01", out.HostKey)
	require.Equal(t, domain.DefaultValidSizes(), out.ValidSizes)
	require.False(t, out.IsRevealed)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "https://poker.example.com", resp.Headers["Access-Control-Allow-Origin"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_GetRoomOmitsHostKey(t *testing.T) {
	uc := &stubRooms{room: domain.Room{
		RoomID:     "Ab12Cd",
		HostKey:    "secret",
		ValidSizes: []string{"1", "2"},
		Participants: []domain.Participant{
			{UserKey: "uk01", UserID: "id-1", Username: "Ada", Vote: "2"},
			{UserKey: "uk02", UserID: "id-2", Username: "Bo"},
		},
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/rooms/Ab12Cd", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Ab12Cd", uc.roomID)
	require.NotContains(t, resp.Body, "secret")
	require.NotContains(t, resp.Body, "uk01")

	out := parseBody[roomResponse](t, resp.Body)
	require.Equal(t, []participantResponse{
		{UserID: "id-1", Username: "Ada", Vote: "2", HasVoted: true},
		{UserID: "id-2", Username: "Bo"},
	}, out.Participants)
}

func TestHandle_SetCardsRevealed(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPut, "/rooms/r1", `{"isRevealed":true}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "r1", uc.roomID)
	require.True(t, uc.revealed)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPut, "/rooms/r1", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, uc.calls, 1)
}

func TestHandle_DeleteRoom(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/rooms/r1", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"DeleteRoom"}, uc.calls)
}

func TestHandle_AddUser(t *testing.T) {
	uc := &stubRooms{addOut: usecase.AddUserOutput{RoomID: "r1", Username: "Ada", UserKey: "uk01", UserID: "id-1"}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/rooms/r1/users", `{"username":"Ada","userId":"id-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, usecase.AddUserInput{RoomID: "r1", Username: "Ada", UserID: "id-1"}, uc.addInput)

	out := parseBody[addUserResponse](t, resp.Body)
	require.Equal(t, "uk01", out.UserKey)
}

func TestHandle_SetVote(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPut, "/rooms/r1/users/uk01", `{"vote":"13"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, usecase.SetVoteInput{RoomID: "r1", UserKey: "uk01", Vote: "13"}, uc.voteInput)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodPut, "/rooms/r1/users/uk01", `{"vote":""}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, uc.voteInput.Vote)
}

func TestHandle_RejectsUnknownVote(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	for _, body := range []string{`{"vote":"42"}`, `{}`, `nope`} {
		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPut, "/rooms/r1/users/uk01", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	}
	require.Empty(t, uc.calls)
}

func TestHandle_Base64Body(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodPut, "/rooms/r1", base64.StdEncoding.EncodeToString([]byte(`{"isRevealed":false}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"SetCardsRevealed"}, uc.calls)
	require.False(t, uc.revealed)
}

func TestHandle_ProxyParameterWins(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodGet, "/prod/rooms/r9", "")
	event.PathParameters = map[string]string{"proxy": "rooms/r9"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "r9", uc.roomID)
}

func TestHandle_Routing(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{name: "preflight", method: http.MethodOptions, path: "/rooms/r1/users/uk01", status: http.StatusNoContent},
		{name: "unknown root", method: http.MethodGet, path: "/ask", status: http.StatusNotFound, code: "ROUTE_NOT_FOUND"},
		{name: "too deep", method: http.MethodGet, path: "/rooms/r1/users/uk01/extra", status: http.StatusNotFound, code: "ROUTE_NOT_FOUND"},
		{name: "unknown child", method: http.MethodPost, path: "/rooms/r1/votes", status: http.StatusNotFound, code: "ROUTE_NOT_FOUND"},
		{name: "get collection", method: http.MethodGet, path: "/rooms", status: http.StatusMethodNotAllowed, code: "METHOD_NOT_ALLOWED"},
		{name: "post room", method: http.MethodPost, path: "/rooms/r1", status: http.StatusMethodNotAllowed, code: "METHOD_NOT_ALLOWED"},
		{name: "get users", method: http.MethodGet, path: "/rooms/r1/users", status: http.StatusMethodNotAllowed, code: "METHOD_NOT_ALLOWED"},
		{name: "delete user", method: http.MethodDelete, path: "/rooms/r1/users/uk01", status: http.StatusMethodNotAllowed, code: "METHOD_NOT_ALLOWED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubRooms{}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(tc.method, tc.path, ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Empty(t, uc.calls)
			require.Equal(t, allowedMethods, resp.Headers["Access-Control-Allow-Methods"])
			if tc.code != "" {
				require.Equal(t, tc.code, parseBody[errorResponse](t, resp.Body).Error)
			}
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_username"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "room_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "condition failed", err: &usecase.Error{Code: usecase.ErrorConditionFailed, Reason: "dynamodb_set_vote_error"}, status: http.StatusConflict, code: string(usecase.ErrorConditionFailed)},
		{name: "store unavailable", err: &usecase.Error{Code: usecase.ErrorStoreUnavailable, Reason: "dynamodb_get_room_error"}, status: http.StatusServiceUnavailable, code: string(usecase.ErrorStoreUnavailable)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "id_generation_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubRooms{err: tc.err}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/rooms/r1", ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubRooms{}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodDelete, "/rooms/r1", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
