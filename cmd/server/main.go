package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/server"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Collaborators.AppSpawnAddr, "appspawn", cfg.Collaborators.AppSpawnAddr, "App spawner base URL")
	flag.StringVar(&cfg.Collaborators.BundleManifestDir, "bundles", cfg.Collaborators.BundleManifestDir, "Bundle manifest directory")
	flag.StringVar(&cfg.AMS.DataDir, "data", cfg.AMS.DataDir, "Mission data directory")
	startup := flag.String("startup", cfg.AMS.StartupConfig, "Startup config file (yaml or toml)")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	cfg.Logging.Development = *dev
	if *startup != "" && *startup != cfg.AMS.StartupConfig {
		file, err := config.LoadStartupFile(*startup)
		if err != nil {
			log.Fatalf("Failed to load startup config: %v", err)
		}
		cfg.Apply(file)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
