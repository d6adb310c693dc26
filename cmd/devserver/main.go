// Command devserver serves the room API over plain HTTP against a local
// DynamoDB (LocalStack or DynamoDB Local).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"

	"planning-poker/handler"
	"planning-poker/internal/bootstrap"
	"planning-poker/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("devserver stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	app, err := bootstrap.Setup(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	if err := app.Repo.ValidateTable(ctx); err != nil {
		return err
	}

	router, err := newRouter(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.DevListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", cfg.DevListenAddr, "table", cfg.StateTable, "endpoint", cfg.Endpoint())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(app *bootstrap.App) (http.Handler, error) {
	api, err := handler.NewHandler(app.Rooms, app.Config.AllowedOrigin)
	if err != nil {
		return nil, err
	}
	ws, err := handler.NewWebSocketHandler(app.Connections)
	if err != nil {
		return nil, err
	}
	cleanup, err := handler.NewCleanupHandler(app.Rooms)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.Config.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-Id"},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Post("/ws/{connectionId}", websocketHandler("$connect", ws.Handle))
	r.Delete("/ws/{connectionId}", websocketHandler("$disconnect", ws.Handle))

	r.Post("/admin/cleanup", func(w http.ResponseWriter, r *http.Request) {
		event := events.CloudWatchEvent{
			ID:         middleware.GetReqID(r.Context()),
			DetailType: "Scheduled Event",
			Source:     "devserver",
			Time:       time.Now().UTC(),
		}
		if err := cleanup.Handle(r.Context(), event); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": "STORE_UNAVAILABLE"})
			return
		}
		render.NoContent(w, r)
	})

	r.HandleFunc("/rooms", proxyHandler(api.Handle))
	r.HandleFunc("/rooms/*", proxyHandler(api.Handle))
	r.NotFound(proxyHandler(api.Handle))

	return r, nil
}
