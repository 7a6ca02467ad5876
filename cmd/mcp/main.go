package main

import (
	"context"
	"log"
	"os"
	"time"

	mcpadapter "github.com/stackatlas/stackatlas/internal/adapters/mcp"
	"github.com/stackatlas/stackatlas/internal/bootstrap"
	"github.com/stackatlas/stackatlas/internal/config"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	app, err := bootstrap.NewWithLogSink(ctx, cfg, "mcp", os.Stderr)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.Logger.Error("client_teardown_error", "error", err.Error())
		}
	}()

	// ServeStdio returns when the client closes the pipe.
	if err := mcpadapter.NewServer(app.AskUC, version).ServeStdio(); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
