// Command catalog-load replaces the coworking catalog with the contents of a CSV file.
// A file with any malformed row is rejected and the current catalog is left unchanged.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ssherwood/coworkingservice/internal/app"
	"github.com/ssherwood/coworkingservice/internal/config"
	"github.com/ssherwood/coworkingservice/internal/ingest"
)

func main() {
	path := flag.String("file", config.CatalogCSV, "CSV snapshot to load (defaults to CATALOG_CSV_PATH)")
	flag.Parse()

	if err := run(*path); err != nil {
		slog.Error("Catalog load failed", config.ErrAttr(err))
		os.Exit(1)
	}
}

func run(path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := app.InitializeTelemetry(ctx)
	defer telemetry.Shutdown(context.Background())
	if err != nil {
		return err
	}

	catalog, closeCatalog, err := app.OpenCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCatalog()

	report, err := ingest.NewLoader(catalog).LoadFromTabularSource(ctx, path)
	if err != nil {
		return err
	}

	slog.Info("Catalog replaced",
		slog.String("run_id", report.RunID.String()),
		slog.String("source", report.Source),
		slog.Int("rows", report.Rows),
		slog.Duration("duration", report.Duration))
	return nil
}
