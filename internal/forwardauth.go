// Package internal wires the forward-auth application together.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/forward-auth/internal/config"
	"github.com/dgellow/forward-auth/internal/log"
	"github.com/dgellow/forward-auth/internal/policy"
	"github.com/dgellow/forward-auth/internal/provider"
	"github.com/dgellow/forward-auth/internal/server"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// ForwardAuth is the assembled application
type ForwardAuth struct {
	cfg        config.Config
	httpServer *server.HTTPServer
}

// NewForwardAuth builds the application with all dependencies injected
func NewForwardAuth(cfg config.Config) (*ForwardAuth, error) {
	log.LogInfoWithFields("forwardauth", "Building forward-auth application", map[string]any{
		"provider": cfg.Provider,
		"addr":     cfg.Addr,
	})

	registry := provider.NewRegistry(cfg)

	// Fail fast on an unknown or misconfigured provider instead of
	// deferring to the first login
	if err := registry.Preload(cfg.Provider); err != nil {
		return nil, fmt.Errorf("provider validation failed: %w", err)
	}

	evaluator := policy.New(cfg.Whitelist, cfg.Blacklist)
	handlers := server.NewAuthHandlers(cfg, registry, evaluator)

	router := mux.NewRouter()
	router.Handle("/healthz", server.NewHealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/callback", handlers.CallbackHandler).Methods(http.MethodGet)
	router.HandleFunc("/", handlers.CheckHandler).Methods(http.MethodGet)

	handler := server.ChainMiddleware(router,
		server.NewForwardedHeaderMiddleware(),
		server.NewLoggerMiddleware("http"),
		server.NewRecoverMiddleware("http"),
	)

	return &ForwardAuth{
		cfg:        cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// a termination signal arrives, then shuts down gracefully.
func (f *ForwardAuth) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return f.httpServer.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return f.httpServer.Stop(shutdownCtx)
	})

	return g.Wait()
}
