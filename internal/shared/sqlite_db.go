package shared

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ssherwood/coworkingservice/internal/config"
)

// sqliteDSN enables WAL so readers keep seeing the last committed catalog while a
// replace is being written, and takes the write lock when a transaction begins.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
}

func InitializeSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		slog.Error("Unable to open SQLite catalog", slog.String("path", path), config.ErrAttr(err))
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		slog.Error("Unable to reach SQLite catalog", slog.String("path", path), config.ErrAttr(err))
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	_ = InitSQLMeter(db)
	slog.Info("Opened SQLite catalog", slog.String("path", path))
	return db, nil
}
