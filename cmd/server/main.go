// Package main is the entry point for the PlotPay payment reconciliation
// service. It wires the billing records, the payment gateway intake and the
// reconciliation engine together, starts the replay sweep and serves the
// HTTP API until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jowabu/plotpay/internal/clients/daraja"
	"github.com/jowabu/plotpay/internal/config"
	"github.com/jowabu/plotpay/internal/database"
	"github.com/jowabu/plotpay/internal/modules/callbacks"
	"github.com/jowabu/plotpay/internal/modules/payments"
	"github.com/jowabu/plotpay/internal/modules/plots"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
	"github.com/jowabu/plotpay/internal/scheduler"
	"github.com/jowabu/plotpay/internal/server"
	"github.com/jowabu/plotpay/pkg/logger"
)

// replaySpec is how often stranded gateway transactions are swept back
// through the reconciliation engine.
const replaySpec = "@every 5m"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	// The billing records live in their own file; the ledger file also holds
	// the gateway intake tables so the replay sweep can anti-join them.
	plotsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "plots.db"),
		Profile: database.ProfileStandard,
		Name:    "plots",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open plots database")
	}
	defer plotsDB.Close()

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := plots.InitSchema(plotsDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize plots schema")
	}
	if err := payments.InitSchema(ledgerDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize payments schema")
	}
	if err := callbacks.InitSchema(ledgerDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize callbacks schema")
	}

	plotRepo := plots.NewRepository(plotsDB.Conn(), log)
	paymentRepo := payments.NewRepository(ledgerDB.Conn(), log)
	intakeRepo := callbacks.NewRepository(ledgerDB.Conn(), log)

	resolver := plots.NewResolver(plotRepo, log)
	reconciler := reconciliation.NewService(resolver, paymentRepo, log)
	gatewayClient := daraja.NewClient(cfg.Daraja, log)

	sched := scheduler.New(log)
	replayJob := scheduler.NewReplayPendingJob(intakeRepo, reconciler, log)
	if err := sched.Register(replaySpec, replayJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule replay job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:           log,
		Config:        cfg,
		PlotRepo:      plotRepo,
		PaymentRepo:   paymentRepo,
		IntakeRepo:    intakeRepo,
		Reconciler:    reconciler,
		GatewayClient: gatewayClient,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
