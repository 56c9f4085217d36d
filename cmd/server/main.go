package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/api"
	"github.com/sb-diagnostic-server/internal/config"
	"github.com/sb-diagnostic-server/internal/inference"
	"github.com/sb-diagnostic-server/internal/logging"
	"github.com/sb-diagnostic-server/internal/repository"
	"github.com/sb-diagnostic-server/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: search config.yaml)")
	flag.Parse()

	// Load configuration
	var (
		configManager *config.Manager
		err           error
	)
	if *configPath != "" {
		configManager, err = config.NewManagerFromFile(*configPath)
	} else {
		configManager, err = config.NewManager()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	store, err := repository.New(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gateway, err := inference.New(ctx, &cfg.Inference, &cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer gateway.Close()

	svc, err := service.NewDiagnosisService(service.DiagnosisServiceConfig{
		Validator:   service.NewInputValidator(cfg.Validation.StrictNumeric),
		Predictor:   gateway,
		Store:       store,
		Logger:      logger,
		PrivacyMode: cfg.Logging.PrivacyMode,
	})
	if err != nil {
		return err
	}

	history, err := service.NewHistoryEngine(cfg.History.Locale)
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Options{
		Config:         cfg,
		Service:        svc,
		History:        history,
		Logger:         logger,
		InferenceState: gateway.BreakerState,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"storage":     cfg.Storage.Driver,
		"inference":   cfg.Inference.Driver,
	}).Infof("Starting SB diagnostic server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	return server.Start(ctx)
}
