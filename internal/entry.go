// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/artselect/internal/api"
	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/catalog"
	"github.com/starford/artselect/internal/discovery"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/mcpserver"
	"github.com/starford/artselect/internal/raster"
	"github.com/starford/artselect/internal/session"
	"github.com/starford/artselect/internal/sse"
	"github.com/starford/artselect/internal/storage"
)

// components are the collaborators shared by the HTTP and MCP front ends.
type components struct {
	logger   *slog.Logger
	store    *storage.FS
	db       *catalog.DB
	broker   *sse.Broker
	svc      *canvasservice.Service
	sessions *session.Manager
	images   *imagesearch.Client
}

func (c *components) close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close catalog", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build opens storage and the catalog and wires the services on top.
func build(app *application) (*components, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("canvas_width", cfg.Canvas.Width),
		slog.Int("canvas_height", cfg.Canvas.Height),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	if err := catalog.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	bg := cfg.Canvas.BackgroundColor()
	placeholder, err := raster.New(cfg.Canvas.Width, cfg.Canvas.Height,
		raster.WithBackground(bg),
		raster.WithJPEGQuality(cfg.Canvas.JPEGQuality),
	).Export()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("render placeholder: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)

	svc := canvasservice.NewService(store, db,
		canvasservice.WithPlaceholder(placeholder),
		canvasservice.WithEventFunc(broker.PublishCanvasEvent),
	)

	sessions := session.NewManager(session.Config{
		Width:       cfg.Canvas.Width,
		Height:      cfg.Canvas.Height,
		Background:  bg,
		JPEGQuality: cfg.Canvas.JPEGQuality,
		IdleTimeout: cfg.Session.IdleTimeout,
		MaxSessions: cfg.Session.MaxSessions,
	}, svc, logger.With(slog.String("component", "session")))

	images := imagesearch.New(imagesearch.Config{
		Endpoint:  cfg.Search.Endpoint,
		AccessKey: cfg.Search.AccessKey,
		PerPage:   cfg.Search.PerPage,
		Timeout:   cfg.Search.Timeout,
		MaxBytes:  cfg.Search.MaxBytes,
	})

	return &components{
		logger:   logger,
		store:    store,
		db:       db,
		broker:   broker,
		svc:      svc,
		sessions: sessions,
		images:   images,
	}, nil
}

// NewHTTPHandler builds the root router: health checks plus the API under /api.
func NewHTTPHandler(deps api.Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(deps))
	return r
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	httpServer := &http.Server{
		Addr: cfg.App.HTTP.Address(),
		Handler: NewHTTPHandler(api.Deps{
			Canvases:    c.svc,
			Sessions:    c.sessions,
			Images:      c.images,
			Broker:      c.broker,
			AuthEnabled: cfg.Auth.AuthEnabled(),
			Token:       cfg.Auth.Token,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		err := catalog.Watch(gCtx, c.db, c.store, cfg.Storage.Path, logger, func(kind string, id int64) {
			c.broker.PublishCanvasEvent(kind, id)
		})
		if err != nil {
			logger.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		return c.sessions.Run(gCtx)
	})

	if cfg.Discovery.Enabled {
		g.Go(func() error {
			err := discovery.Run(gCtx, discovery.Config{
				Instance: cfg.Discovery.Instance,
				Port:     cfg.App.HTTP.Port,
			}, logger)
			if err != nil {
				logger.Warn("mdns advertisement disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so background loops stop once the
// HTTP server has drained.
var errShutdown = errors.New("shutdown")

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

// RunMCP serves the canvas tools over stdio until stdin closes. Logs go to
// the configured log output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.svc, c.sessions, c.images, app.config.Canvas.Width, app.config.Canvas.Height)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.sessions.Run(gCtx)
	})
	g.Go(func() error {
		if err := srv.ServeStdio(); err != nil {
			return err
		}
		return errShutdown
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}
