package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/quokkaworks/todo-sso/internal/api/http"
	"github.com/quokkaworks/todo-sso/internal/api/service"
	"github.com/quokkaworks/todo-sso/pkg/jwtx"
	"github.com/quokkaworks/todo-sso/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the todo API with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	remoteKeys  *jwtx.RemoteKeySet
	verifier    jwtx.Verifier
	todoService *service.TodoService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("SSO_ISSUER_URL is required")
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "todo-api",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initKeys(); err != nil {
		return nil, err
	}

	app.todoService = service.NewTodoService()
	app.initHTTP()

	return app, nil
}

// initKeys resolves the provider's JWKS endpoint and wires the remote key
// set the verifier pulls from. The initial fetch is a warm-up only; a
// provider that is down at boot shows up in /readyz rather than stopping
// the process.
func (app *Application) initKeys() error {
	jwksURL := app.cfg.JWKSURL
	if jwksURL == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		doc, err := jwtx.Discover(ctx, app.cfg.IssuerURL, nil)
		if err != nil {
			return fmt.Errorf("failed to discover provider endpoints: %w", err)
		}
		jwksURL = doc.JWKSURI
		app.logger.Info("resolved jwks endpoint via discovery", "jwks_url", jwksURL)
	}

	app.remoteKeys = jwtx.NewRemoteKeySet(jwksURL, app.cfg.JWKSTTL, nil)
	app.verifier = jwtx.NewVerifierRS256(app.remoteKeys, app.cfg.IssuerURL, app.cfg.Audience).
		WithLeeway(app.cfg.ClockLeeway)

	warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.remoteKeys.WarmUp(warmCtx); err != nil {
		app.logger.Warn("initial key fetch failed, continuing without keys", "error", err)
	}

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		app.remoteKeys,
		app.cfg.RequiredScopes,
		BuildVersion,
		app.logger,
	)
	router.TodoService = app.todoService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("todo api starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"issuer", app.cfg.IssuerURL,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down todo api...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.logger.Info("todo api stopped")
	return nil
}
