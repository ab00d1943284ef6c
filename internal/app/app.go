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

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/sdk/log"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/ssherwood/coworkingservice/internal/config"
	"github.com/ssherwood/coworkingservice/internal/shared"
	"github.com/ssherwood/coworkingservice/internal/space"
)

type Application interface {
	Initialize(ctx context.Context) error
	Run()
	Shutdown(ctx context.Context) error
}

// Telemetry holds whichever OTEL providers were enabled by configuration.
type Telemetry struct {
	TracerProvider  *trace.TracerProvider
	MetricsProvider *metricsdk.MeterProvider
	LoggerProvider  *log.LoggerProvider
}

// InitializeTelemetry starts the OTEL providers enabled by configuration and installs
// the default slog logger.
func InitializeTelemetry(ctx context.Context) (*Telemetry, error) {
	t := &Telemetry{}

	if config.OTELLogsEnabled {
		lp, err := shared.InitializeLoggingProvider(ctx, os.Stdout)
		if err != nil {
			return t, err
		}
		t.LoggerProvider = lp
		shared.InitializeLogger(os.Stderr, lp)
	} else {
		shared.InitializeLogger(os.Stderr, nil)
	}

	if config.OTELTracerEnabled {
		tp, err := shared.InitTracerProvider(ctx)
		if err != nil {
			return t, err
		}
		t.TracerProvider = tp
	}

	if config.OTELMetricsEnabled {
		mp, err := shared.InitializeMetricProvider(ctx)
		if err != nil {
			return t, err
		}
		t.MetricsProvider = mp
	}

	return t, nil
}

func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}

	if t.MetricsProvider != nil {
		if err := t.MetricsProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL metrics provider", config.SlogServiceName, config.ErrAttr(err))
		}
	}

	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL tracer provider", config.SlogServiceName, config.ErrAttr(err))
		}
	}

	if t.LoggerProvider != nil {
		if err := t.LoggerProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL logger provider", config.SlogServiceName, config.ErrAttr(err))
		}
	}
}

// OpenCatalog connects the catalog store selected by CATALOG_DRIVER and makes sure its
// schema exists. The returned func releases the underlying database handle.
func OpenCatalog(ctx context.Context) (space.Repository, func(), error) {
	switch config.CatalogDriver {
	case config.CatalogDriverPostgres:
		db, err := shared.InitializeDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err = shared.PingDB(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}

		repo := space.NewPostgresRepository(db, config.DBYSQLFollowerReads)
		if err = repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil

	case config.CatalogDriverSQLite:
		db, err := shared.InitializeSQLite(ctx, config.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		repo := space.NewSQLiteRepository(db)
		if err = repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown CATALOG_DRIVER %q (want %q or %q)",
		config.CatalogDriver, config.CatalogDriverPostgres, config.CatalogDriverSQLite)
}

type CoworkingApplication struct {
	Server       *http.Server
	Router       *mux.Router
	Telemetry    *Telemetry
	Catalog      space.Repository
	closeCatalog func()
}

func (app *CoworkingApplication) Initialize(ctx context.Context) error {
	telemetry, err := InitializeTelemetry(ctx)
	app.Telemetry = telemetry
	if err != nil {
		return err
	}

	catalog, closeCatalog, err := OpenCatalog(ctx)
	if err != nil {
		return err
	}
	app.Catalog, app.closeCatalog = catalog, closeCatalog

	app.Router = NewRouter(app.Catalog)

	app.Server = &http.Server{
		Handler:      app.Router,
		Addr:         config.ServerAddress,
		WriteTimeout: config.ServerWriteTimeout,
		ReadTimeout:  config.ServerReadTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	return nil
}

// NewRouter mounts the catalog query API over the given store.
func NewRouter(catalog space.Repository) *mux.Router {
	router := mux.NewRouter()
	router.Use(otelmux.Middleware(config.ServiceName))
	_ = space.NewHandler(router, space.NewService(catalog))
	return router
}

func (app *CoworkingApplication) Run() {
	go func() {
		slog.Info("Starting application", config.SlogServiceName, config.SlogServiceAddress)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start application", config.SlogServiceName, config.ErrAttr(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancelContext, cancelFn := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelFn()

	if err := app.Shutdown(cancelContext); err != nil {
		slog.Info("Failed to gracefully shutdown", config.SlogServiceName, config.ErrAttr(err))
	}

	slog.Info("Application stopped.", config.SlogServiceName)
}

// Shutdown stops accepting requests, drains in-flight ones, then releases the catalog
// and flushes telemetry.
func (app *CoworkingApplication) Shutdown(ctx context.Context) error {
	slog.Info("Application shutting down...", config.SlogServiceName)

	var shutdownErr error
	if app.Server != nil {
		if err := app.Server.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown HTTP server", config.SlogServiceName, config.ErrAttr(err))
			shutdownErr = err
		}
	}

	if app.closeCatalog != nil {
		app.closeCatalog()
	}

	app.Telemetry.Shutdown(ctx)

	return shutdownErr
}
