package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ssherwood/coworkingservice/internal/app"
	"github.com/ssherwood/coworkingservice/internal/config"
)

func main() {
	coworkingApp := &app.CoworkingApplication{}

	if err := coworkingApp.Initialize(context.Background()); err != nil {
		slog.Error("Failed to initialize application", config.ErrAttr(err))
		_ = coworkingApp.Shutdown(context.Background())
		os.Exit(1)
	}

	coworkingApp.Run()
}
