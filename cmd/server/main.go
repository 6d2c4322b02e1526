// Command server runs the user operation relay: the HTTP API and the submission worker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethaccount/userop/docs/swagger"
	"github.com/ethaccount/userop/src/app"
	"github.com/joho/godotenv"
)

// @license.name  AGPL-3.0-only

// @host      localhost:8080
// @BasePath  /api/v1

const (
	AppName    = "UserOp Relay"
	AppVersion = "0.1.0"

	shutdownTimeout = 15 * time.Second
)

func main() {
	// Load .env file if it exists (optional in production)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			log.Fatalf("Error loading .env file: %v", err)
		}
	}

	config := app.NewAppConfig()

	swagger.SwaggerInfo.Title = AppName + " API"
	swagger.SwaggerInfo.Version = AppVersion
	swagger.SwaggerInfo.Description = fmt.Sprintf("%s for ERC-4337 v0.7 user operations: building, hashing, encoding and bundler submission", AppName)
	swagger.SwaggerInfo.Host = *config.Host

	logger := app.InitLogger(*config.LogLevel, *config.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = logger.WithContext(ctx)

	logger.Info().
		Str("version", AppVersion).
		Str("environment", *config.Environment).
		Str("entry_point", config.EntryPoint.Hex()).
		Int("worker_concurrency", *config.WorkerConcurrency).
		Msgf("Launching %s", AppName)

	application, err := app.NewApplication(ctx, *config)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		stop()
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go application.RunHTTPServer(ctx, &wg)
	go application.RunSubmissionWorker(ctx, &wg)
	go application.RunStatsLogger(ctx, &wg)

	<-ctx.Done()
	stop()
	logger.Info().Msg("Shutting down, waiting for in-flight submissions")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		// interrupted submissions are recovered on the next start
		logger.Error().Dur("timeout", shutdownTimeout).Msg("Timed out waiting for workers")
	}

	application.Shutdown(ctx)
	logger.Info().Msg("Shutdown complete")
}
