package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	server    *http.Server
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	cfg := container.Config()
	app.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.HTTPHandler().Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app.container.Logger().Info("Application initialized successfully")
	return app, nil
}

// Run serves HTTP and consumes purchase requests until a signal arrives or
// either side fails, then drains in-flight requests.
func (app *Application) Run() error {
	logger := app.container.Logger()
	group, ctx := errgroup.WithContext(app.ctx)

	group.Go(func() error {
		logger.Info("🌐 HTTP server listening", zap.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return app.container.ConsumerService().Start(ctx)
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Server is gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()

		if err := app.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server failed shutdown gracefully: %w", err)
		}
		return nil
	})

	return group.Wait()
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().ShutdownTimeout)
		defer cancel()
		app.container.Shutdown(ctx)
	}
}
