package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/api"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/bank"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/config"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/database"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/logging"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/metrics"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/repository"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/scheduler"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/secure"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/version"
)

func main() {
	envFiles := pflag.StringSlice("env-file", nil, "env file(s) to load before reading the environment (default ./.env)")
	verbose := pflag.BoolP("verbose", "v", false, "log at debug level")
	generateKey := pflag.Bool("generate-key", false, "print a new BANK_DETAILS_KEY and exit")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	if *generateKey {
		key, err := secure.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	// Load configuration
	cfg, err := config.Load(*envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, *verbose)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.Security.BankDetailsKey == "" {
		return errors.New("BANK_DETAILS_KEY is not set; create one with --generate-key")
	}
	cipher, err := secure.NewCipher(strings.Split(cfg.Security.BankDetailsKey, ",")...)
	if err != nil {
		return fmt.Errorf("invalid BANK_DETAILS_KEY: %w", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("connected to database", "path", cfg.Database.Path)

	if err := database.Migrate(db, log); err != nil {
		return err
	}

	// Create repositories
	distRepo := repository.NewDistributionRepository(db, cipher)
	registryRepo := repository.NewRegistryRepository(db, cipher)
	batchRepo := repository.NewBatchRepository(db)

	clock := clockwork.NewRealClock()
	gateway := bank.NewHTTPClient(bank.Config{
		BaseURL:   cfg.Bank.BaseURL,
		APIKey:    cfg.Bank.APIKey,
		Timeout:   cfg.Bank.Timeout,
		RateLimit: cfg.Bank.RateLimit,
		Burst:     cfg.Bank.Burst,
	})

	// Create services
	services := api.Services{
		System:        service.NewSystemService(db),
		Distributions: service.NewDistributionService(db, distRepo, registryRepo, clock, cfg.Distribution.TDSRate, log),
		Approvals:     service.NewApprovalService(db, distRepo, clock, log),
		Payments:      service.NewPaymentService(db, distRepo, batchRepo, gateway, clock, cfg.Distribution.Currency, log),
		Ledger:        service.NewLedgerService(distRepo, registryRepo, registryRepo),
	}

	metrics.BuildInfo.WithLabelValues(version.Version).Set(1)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler.CompletionSweep, services.Payments, log)
		if err != nil {
			return err
		}
		sched.Start()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(services, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a batch submission waits on the bank
		WriteTimeout: cfg.Bank.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr, "version", version.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
