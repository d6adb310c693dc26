package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestToProxyRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/rooms/AbC123/users/uk01?debug=1", strings.NewReader(`{"vote":"5"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("X-Correlation-Id", "corr-1")

	event, err := toProxyRequest(req)
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, event.HTTPMethod)
	require.Equal(t, "/rooms/AbC123/users/uk01", event.Path)
	require.Equal(t, "rooms/AbC123/users/uk01", event.PathParameters["proxy"])
	require.Equal(t, `{"vote":"5"}`, event.Body)
	require.False(t, event.IsBase64Encoded)
	require.Equal(t, "application/json", event.Headers["Content-Type"])
	require.Equal(t, "corr-1", event.Headers["X-Correlation-Id"])
	require.Equal(t, map[string]string{"debug": "1"}, event.QueryStringParameters)
}

func TestToProxyRequest_NoQuery(t *testing.T) {
	event, err := toProxyRequest(httptest.NewRequest(http.MethodPost, "/rooms", nil))
	require.NoError(t, err)
	require.Nil(t, event.QueryStringParameters)
	require.Empty(t, event.Body)
}

func TestProxyHandler_WritesResponse(t *testing.T) {
	var got events.APIGatewayProxyRequest
	fn := func(_ context.Context, e events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = e
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusCreated,
			Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "corr-9"},
			Body:       `{"roomId":"AbC123"}`,
		}, nil
	}

	rec := httptest.NewRecorder()
	proxyHandler(fn)(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))

	require.Equal(t, http.MethodPost, got.HTTPMethod)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "corr-9", rec.Header().Get("X-Correlation-Id"))
	require.JSONEq(t, `{"roomId":"AbC123"}`, rec.Body.String())
}

func TestProxyHandler_HandlerError(t *testing.T) {
	fn := func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("boom")
	}

	rec := httptest.NewRecorder()
	proxyHandler(fn)(rec, httptest.NewRequest(http.MethodGet, "/rooms/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"INTERNAL_ERROR"}`, rec.Body.String())
}

func TestWebsocketHandler(t *testing.T) {
	var seen []events.APIGatewayWebsocketProxyRequest
	fn := func(_ context.Context, e events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		seen = append(seen, e)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	}

	r := chi.NewRouter()
	r.Post("/ws/{connectionId}", websocketHandler("$connect", fn))
	r.Delete("/ws/{connectionId}", websocketHandler("$disconnect", fn))

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, "/ws/conn-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, seen, 2)
	require.Equal(t, "$connect", seen[0].RequestContext.RouteKey)
	require.Equal(t, "CONNECT", seen[0].RequestContext.EventType)
	require.Equal(t, "conn-1", seen[0].RequestContext.ConnectionID)
	require.Equal(t, "$disconnect", seen[1].RequestContext.RouteKey)
	require.Equal(t, "DISCONNECT", seen[1].RequestContext.EventType)
}
