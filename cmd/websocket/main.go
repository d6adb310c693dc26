package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"planning-poker/handler"
	"planning-poker/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.Load(ctx, os.Stdout)
	if err != nil {
		slog.Error("failed to initialise services", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewWebSocketHandler(app.Connections)
	if err != nil {
		slog.Error("failed to create websocket handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
