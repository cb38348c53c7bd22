package main

import (
	"context"
	"courier/auth"
	"courier/infrastructure/grpc/api"
	"courier/infrastructure/grpc/server"
	"courier/infrastructure/storage"
	"courier/internal"
	"courier/observability"
	"courier/permission"
	"courier/processor"
	"courier/runtime"
	"courier/runtime/workers"
	"courier/services"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Courier terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer (database, search index) executed before the process exits.
func run() (int, error) {
	envFile := flag.String("env", ".env", "optional dotenv file")
	reindex := flag.Bool("reindex", false, "rebuild the location and search indexes from the message tree at startup")
	flag.Parse()

	// 1. Configuration & Logger
	config, err := internal.LoadConfig(*envFile)
	if err != nil {
		return exitConfig, err
	}
	censor, err := internal.CharacterRune(config.CensorCharacter)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Indexes (BadgerDB, Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, IndexMapper)
	}

	var search *storage.SearchIndex
	if config.BlugeFilepath != "" {
		search, err = storage.OpenSearchIndex(config.BlugeFilepath, logger)
		if err != nil {
			return exitRuntime, err
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = search.Close()
		}()
	}

	// 3. Message store
	store, err := storage.NewFileStore(config.StorageRoot, storage.NewLocationIndex(db, logger), search, logger)
	if err != nil {
		return exitRuntime, err
	}
	if *reindex {
		count, err := store.Reindex(ctx)
		if err != nil {
			return exitRuntime, fmt.Errorf("reindex failed: %w", err)
		}
		logger.Info("Message tree reindexed", "copies", count)
	} else if err := store.EnsureIndexed(ctx); err != nil {
		return exitRuntime, err
	}

	// 4. Permissions, processors, router
	gateway := permission.NewGateway(storage.NewGroupRepository(db, logger), logger)
	if err := gateway.Load(); err != nil {
		return exitRuntime, err
	}
	registry := processor.NewRegistry(logger, config.ProcessorTimeout)
	if err := processor.RegisterBuiltins(registry, config.Processors(), censor); err != nil {
		return exitConfig, err
	}
	metrics := observability.NewRouterMetrics(prometheus.DefaultRegisterer)
	if err := metrics.Register(); err != nil {
		return exitRuntime, err
	}
	router := runtime.NewRouter(logger, store, gateway, registry, runtime.NewConnectionRegistry(logger), metrics)

	// 5. Transport
	tokens, err := auth.NewTokenManager(config.AuthSecret, config.AuthIssuer, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}
	resolver := auth.NewResolver(tokens, api.PublicMethods...)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			resolver.UnaryInterceptor(),
		),
		grpc.StreamInterceptor(resolver.StreamInterceptor()),
	)
	messaging := services.NewMessagingService(router)
	authentication := services.NewAuthService(logger, storage.NewCredentialRepository(db, logger), tokens)
	api.RegisterMessagingServer(s, server.NewMessagingServer(logger, messaging, authentication,
		config.ConnectionBufferSize, config.DeliveryTimeout))

	// 6. Supervision
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(
		workers.NewGRPCServerWorker(logger, s, config.Address()),
		workers.NewMetricsServerWorker(logger, fmt.Sprintf("%s:%d", config.Host, config.MetricsPort), prometheus.DefaultGatherer),
		workers.NewTelemetryWorker(logger, config.MetricInterval, metrics),
	)

	logger.Info("Courier starting", "address", config.Address(), "storage_root", config.StorageRoot,
		"processors", registry.List())
	supervisor.Run(ctx)
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
