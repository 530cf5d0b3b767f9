package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/api"
	"github.com/velomail/velo/backend/internal/app"
	"github.com/velomail/velo/backend/internal/config"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/logging"
	"github.com/velomail/velo/backend/migrations"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.CloseConnection(pool)

	log.Info().Msg("Successfully connected to database")

	if _, err := migrations.Apply(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	a, err := app.New(cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}
	a.StartBackground(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewServer(ctx, a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", server.Addr).Str("environment", cfg.Environment).Msg("Velo backend server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	a.Close(shutdownCtx)
}

// NewServer creates the HTTP handler of the Velo API. Background work started by handlers
// runs under ctx.
func NewServer(ctx context.Context, a *app.App) http.Handler {
	requireAuth := a.Validator.RequireAuth

	accountHandler := api.NewAccountHandler(a.Pool, a.Encryptor, a.AccountSaved)
	syncHandler := api.NewSyncHandler(ctx, a.Pool, a.Runner, a.Config.SyncDaysBack)
	labelsHandler := api.NewLabelsHandler(a.Pool)
	threadsHandler := api.NewThreadsHandler(a.Pool)
	attachmentsHandler := api.NewAttachmentsHandler(a.Pool, a.Cache, a.Transport, a.Syncer)
	wsHandler := api.NewWebSocketHandler(ctx, a.Pool, a.Validator, a.Hub, a.Idle, a.Runner)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/account", requireAuth(accountHandler))
	mux.Handle("/api/v1/sync/initial", requireAuth(http.HandlerFunc(syncHandler.PostInitial)))
	mux.Handle("/api/v1/sync/delta", requireAuth(http.HandlerFunc(syncHandler.PostDelta)))
	mux.Handle("GET /api/v1/labels", requireAuth(http.HandlerFunc(labelsHandler.GetLabels)))
	mux.Handle("GET /api/v1/threads", requireAuth(http.HandlerFunc(threadsHandler.GetThreads)))
	mux.Handle("GET /api/v1/threads/{id}", requireAuth(http.HandlerFunc(threadsHandler.GetThread)))
	mux.Handle("GET /api/v1/attachments/{id}", requireAuth(http.HandlerFunc(attachmentsHandler.GetAttachment)))
	// Authenticates itself: browsers can't set headers on WebSocket requests.
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	return mux
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Velo API is running")
}
