package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AnemoneDB/internal/api"
	"AnemoneDB/internal/authlog"
	"AnemoneDB/internal/config"
	"AnemoneDB/internal/credential"
	"AnemoneDB/internal/db"
	"AnemoneDB/internal/email"
	"AnemoneDB/internal/mailjob"
	"AnemoneDB/internal/mailtmpl"
	"AnemoneDB/internal/metrics"
	"AnemoneDB/internal/notify"
	"AnemoneDB/internal/passwordreset"
	"AnemoneDB/internal/plugin"
	"AnemoneDB/internal/scheduler"
	"AnemoneDB/internal/websocket"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	// ------------------------------------------------
	// Email Sender
	// ------------------------------------------------
	sender := &email.Sender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Retries:  cfg.RetryAttempts,
	}

	site := mailtmpl.Site{
		Title:    cfg.SiteTitle,
		HomeURL:  cfg.HomeURL,
		LoginURL: cfg.LoginURL,
	}

	// ------------------------------------------------
	// Credentials + Reset Keys
	// ------------------------------------------------
	creds := credential.New(store, cfg.CredentialTTL, logger)
	resetKeys := passwordreset.New(store, store, cfg.ResetKeyTTL, logger)

	notifier := notify.New(store, sender, resetKeys, site, notify.Templates{
		WelcomeSubject: cfg.WelcomeSubject,
		WelcomeBody:    cfg.WelcomeBody,
		ResetSubject:   cfg.ResetSubject,
		ResetBody:      cfg.ResetBody,
	}, logger)

	// ------------------------------------------------
	// Scheduler + Bulk Mail Engine
	// ------------------------------------------------
	sched := scheduler.New(store, logger)

	// app is assigned below; triggers only fire after sched.Start.
	var app *plugin.App
	onTick := func(hook string) func(context.Context) {
		return func(ctx context.Context) { app.Tick(hook)(ctx) }
	}

	mailTrigger := sched.Trigger(plugin.HookEmailSend, cfg.TickPeriod, onTick(plugin.HookEmailSend))
	sweepTrigger := sched.Trigger(plugin.HookDDPassCleanup, cfg.SweepPeriod, onTick(plugin.HookDDPassCleanup))

	engine := mailjob.New(store, store, sender, resetKeys, mailTrigger, mailjob.Config{
		Site:       site,
		LockID:     cfg.TickLockID,
		SendBudget: cfg.SendBudget,
	}, logger)

	app = plugin.New(plugin.Components{
		Schema:      store,
		Mail:        engine,
		MailTrigger: mailTrigger,
		Credentials: creds,
		SweepTrig:   sweepTrigger,
		Notifier:    notifier,
		AuthLog:     authlog.New(cfg.AuthLogPath),
	}, logger)

	// ------------------------------------------------
	// Activation
	// ------------------------------------------------
	activation := plugin.NewRequest("")
	if err := app.OnActivate(ctx, activation); err != nil {
		logger.Fatal("activation failed", zap.Error(err))
	}
	for _, n := range activation.Notices() {
		logger.Warn("activation notice", zap.String("type", string(n.Type)), zap.String("message", n.Message))
	}

	// ------------------------------------------------
	// Console Events
	// ------------------------------------------------
	events := websocket.New(engine.Status, logger)
	engine.OnChange(events.Broadcast)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Host:   app,
		Nonces: api.NewNonces(cfg.NonceSecret, cfg.NonceTTL),
		Events: events,
		Token:  cfg.APIToken,
		Log:    logger,
	}

	apiServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           apiHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ------------------------------------------------
	// Run
	// ------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	sched.Start(gctx)

	g.Go(func() error {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down services...")

		// Let a running batch finish its bookkeeping
		sched.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
