// Package dotenv applies a local .env file to the process environment. The config
// package imports it for its init, so the file is read before any setting is.
package dotenv

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

func init() {
	if err := Load(".env"); err != nil {
		slog.Warn("Ignoring unreadable .env file", slog.Any("error", err))
	}
}

// Load applies each file in order without overriding variables that are already set.
// A file that does not exist is skipped.
func Load(filenames ...string) error {
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}
