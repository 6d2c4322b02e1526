package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/handler"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethaccount/userop/src/service"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/rs/zerolog"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const statsInterval = 30 * time.Second

type Application struct {
	config    AppConfig
	database  *gorm.DB
	redis     *redis.Client
	ethClient *ethclient.Client
	bundler   *erc4337.BundlerClient

	submissionRepo  *repository.SubmissionRepository
	submissionCache *repository.SubmissionCacheRepository

	Signer           *service.ECDSASigner
	Builder          *service.UserOpBuilder
	UserOpService    *service.UserOpService
	ExecutionService *service.ExecutionService
	Worker           *service.SubmissionWorker
}

func NewApplication(ctx context.Context, config AppConfig) (*Application, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewApplication").Logger()

	app := &Application{config: config}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(*config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	app.redis = redis.NewClient(redisOpts)

	// Test Redis connection
	if err := app.redis.Ping(ctx).Err(); err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to redis failed: %w", err)
	}
	logger.Info().Msg("Redis connection established")

	// Connect to database
	app.database, err = gorm.Open(postgresDriver.Open(*config.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	// Test database connection
	db, err := app.database.DB()
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("failed to get underlying database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	logger.Info().Msg("Database connection established")

	// run migration files
	if err := MigrationUp(*config.DSN, *config.MigrationPath); err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	logger.Info().Str("path", *config.MigrationPath).Msg("Database migrated")

	// Connect to the execution client and the bundler
	app.ethClient, err = ethclient.DialContext(ctx, *config.RPCURL)
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	app.bundler, err = erc4337.DialContext(ctx, *config.BundlerURL)
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("failed to connect to bundler: %w", err)
	}

	chainID, err := app.verifyChain(ctx)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	logger.Info().
		Str("chain_id", chainID.String()).
		Str("entry_point", config.EntryPoint.Hex()).
		Msg("Bundler connection established")

	app.Signer, err = service.NewECDSASigner(*config.PrivateKey, *config.PersonalSign)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	logger.Info().Str("signer", app.Signer.Address().Hex()).Msg("Signer loaded")

	// Initialize repositories
	app.submissionRepo = repository.NewSubmissionRepository(app.database)
	app.submissionCache = repository.NewSubmissionCacheRepository(app.redis, *config.QueueName)

	// Initialize services
	estimator := service.NewGasEstimator(app.bundler, *config.VerificationGasMargin, *config.PreVerificationGasMargin)
	feeOracle := service.NewFeeOracle(app.ethClient, *config.BaseFeeMultiplier)
	app.Builder = service.NewUserOpBuilder(app.ethClient, estimator, feeOracle, *config.EntryPoint)

	app.UserOpService = service.NewUserOpService(app.submissionRepo, app.submissionCache, *config.EntryPoint, chainID)
	app.ExecutionService = service.NewExecutionService(app.bundler, app.Signer, app.submissionRepo, app.submissionCache, config.WaitConfig())
	app.Worker = service.NewSubmissionWorker(ctx, app.submissionCache, app.submissionRepo, app.ExecutionService, *config.WorkerConcurrency)

	return app, nil
}

// verifyChain checks that the RPC and the bundler agree on the chain and that the bundler
// serves the configured entry point.
func (app *Application) verifyChain(ctx context.Context) (*big.Int, error) {
	rpcChainID, err := app.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id from RPC: %w", err)
	}

	bundlerChainID, err := app.bundler.ChainId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id from bundler: %w", err)
	}

	if rpcChainID.Cmp(bundlerChainID) != 0 {
		return nil, fmt.Errorf("chain id mismatch: RPC %s, bundler %s", rpcChainID, bundlerChainID)
	}
	if err := service.ValidateChainID(bundlerChainID); err != nil {
		return nil, fmt.Errorf("unsupported chain: %w", err)
	}

	entryPoints, err := app.bundler.SupportedEntryPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get supported entry points: %w", err)
	}
	for _, entryPoint := range entryPoints {
		if entryPoint == *app.config.EntryPoint {
			return bundlerChainID, nil
		}
	}
	return nil, fmt.Errorf("bundler does not support entry point %s", app.config.EntryPoint.Hex())
}

func (app *Application) Shutdown(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("function", "Shutdown").Logger()

	if app.bundler != nil {
		app.bundler.Close()
		logger.Info().Msg("Bundler connection closed")
	}

	if app.ethClient != nil {
		app.ethClient.Close()
		logger.Info().Msg("RPC connection closed")
	}

	// Close database connection
	if app.database != nil {
		if db, err := app.database.DB(); err == nil {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close database connection")
			} else {
				logger.Info().Msg("Database connection closed")
			}
		}
	}

	// Close Redis connection
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis connection")
		} else {
			logger.Info().Msg("Redis connection closed")
		}
	}
}

func (app *Application) RunHTTPServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunHTTPServer").Logger()

	// Set to release mode to disable Gin logger
	gin.SetMode(gin.ReleaseMode)

	ginRouter := gin.Default()

	// Register routes
	app.registerRoutes(ctx, ginRouter)

	// Build HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", *app.config.Port),
		Handler: ginRouter,
	}

	// Start server in goroutine
	go func() {
		zerolog.Ctx(ctx).Info().Msgf("HTTP server is on http://localhost:%s/api/v1/health", *app.config.Port)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Panic().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info().Msg("Gracefully shutting down HTTP server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	} else {
		logger.Info().Msg("HTTP server shutdown complete")
	}
}

func (app *Application) RunSubmissionWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunSubmissionWorker").Logger()
	logger.Info().Int("concurrency", *app.config.WorkerConcurrency).Msg("Starting submission worker")

	app.Worker.Start()

	<-ctx.Done()
	logger.Info().Msg("Stopping submission worker...")

	app.Worker.Stop()

	logger.Info().Msg("Submission worker stopped")
}

// RunStatsLogger logs the submission backlog every statsInterval
func (app *Application) RunStatsLogger(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunStatsLogger").Logger()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := service.ReadRelayStats(ctx, app.submissionRepo, app.submissionCache)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("Failed to read relay stats")
				}
				continue
			}

			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			logger.Debug().
				Int64("queue_length", stats.QueueLength).
				Int("queued", stats.Queued).
				Int("in_flight", stats.InFlight).
				Int("goroutines", runtime.NumGoroutine()).
				Uint64("heap_mb", m.HeapInuse/1024/1024).
				Msg("Relay stats")
		}
	}
}

func (app *Application) registerRoutes(ctx context.Context, router *gin.Engine) {
	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = *app.config.AllowOrigins
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-API-Secret", "X-Request-ID"}
	config.AllowCredentials = true

	router.Use(cors.New(config))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler.RegisterRoutes(ctx, router, handler.Handlers{
		Health:    handler.NewHealthHandler(app.UserOpService),
		UserOp:    handler.NewUserOpHandler(app.UserOpService, app.Builder),
		APISecret: *app.config.APISecret,
	})
}
