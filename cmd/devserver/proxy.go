package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const maxBodyBytes = 1 << 20

type proxyFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

type websocketFunc func(context.Context, events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

// toProxyRequest converts an HTTP request into the API Gateway event the
// Lambda handler receives.
func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return events.APIGatewayProxyRequest{}, fmt.Errorf("read body: %w", err)
	}

	headers := make(map[string]string, len(r.Header))
	multi := make(map[string][]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		headers[name] = values[0]
		multi[name] = values
	}

	var query map[string]string
	if q := r.URL.Query(); len(q) > 0 {
		query = make(map[string]string, len(q))
		for name, values := range q {
			query[name] = values[0]
		}
	}

	return events.APIGatewayProxyRequest{
		Resource:              "/{proxy+}",
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		MultiValueHeaders:     multi,
		QueryStringParameters: query,
		PathParameters:        map[string]string{"proxy": strings.TrimPrefix(r.URL.Path, "/")},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  middleware.GetReqID(r.Context()),
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
		},
		Body: string(body),
	}, nil
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	for name, values := range resp.MultiValueHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

func proxyHandler(fn proxyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, err := toProxyRequest(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "INVALID_INPUT"})
			return
		}
		resp, err := fn(r.Context(), event)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "INTERNAL_ERROR"})
			return
		}
		writeProxyResponse(w, resp)
	}
}

// websocketHandler lets a local client simulate API Gateway's $connect and
// $disconnect routes with POST and DELETE on /ws/{connectionId}.
func websocketHandler(routeKey string, fn websocketFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event := events.APIGatewayWebsocketProxyRequest{
			RequestContext: events.APIGatewayWebsocketProxyRequestContext{
				RouteKey:     routeKey,
				EventType:    strings.ToUpper(strings.TrimPrefix(routeKey, "$")),
				ConnectionID: chi.URLParam(r, "connectionId"),
				RequestID:    middleware.GetReqID(r.Context()),
			},
		}
		resp, err := fn(r.Context(), event)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "INTERNAL_ERROR"})
			return
		}
		render.Status(r, resp.StatusCode)
		render.JSON(w, r, map[string]string{"routeKey": routeKey, "connectionId": event.RequestContext.ConnectionID})
	}
}
