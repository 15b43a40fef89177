package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

var (
	servePort  string
	serveStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides CROSSWORD_PORT)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "storage backend: memory, badger or sqlite (overrides CROSSWORD_STORE)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if serveStore != "" {
		cfg.Store = serveStore
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("CROSSWORD_JWT_SECRET is required")
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := SetupTracing(ctx, cfg.OTelEndpoint, "crosswordprize")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.WithoutCancel(ctx))

	store, err := cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(reg)

	var disburser Disburser = LogDisburser{Logger: logger}
	if cfg.RewardWebhookURL != "" {
		disburser = NewWebhookDisburser(cfg.RewardWebhookURL)
	}
	payouts := NewPayouts(disburser, cfg.PayoutQueueSize, logger, metrics)

	feed := NewBroadcaster()
	contract := NewContract(cfg.OwnerID, store, payouts,
		WithObserver(feed),
		WithMetrics(metrics),
		WithLogger(logger),
	)

	// Refuse to start on a corrupt index.
	unsolved, err := contract.UnsolvedPuzzles(ctx)
	if err != nil {
		return fmt.Errorf("load unsolved puzzles: %w", err)
	}

	var gemini *GeminiClient
	if cfg.GCPProjectID != "" {
		gemini, err = NewGeminiClient(ctx, GeminiConfig{ProjectID: cfg.GCPProjectID, Region: cfg.GCPRegion})
		if err != nil {
			return fmt.Errorf("impossible d'initialiser Gemini : %w", err)
		}
		defer gemini.Close()
		logger.Info("Client Gemini initialisé", "project", cfg.GCPProjectID)
	} else {
		logger.Info("GCP_PROJECT_ID non défini, import d'image désactivé")
	}

	srv := NewServer(contract, NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer), gemini, feed, ServerConfig{
		SolveRate:   rate.Limit(cfg.SolveRate),
		SolveBurst:  cfg.SolveBurst,
		UploadRate:  rate.Limit(cfg.UploadRate),
		UploadBurst: cfg.UploadBurst,
		Logger:      logger,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(srv, "crossword.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Payouts outlive the HTTP server so rewards requested by in-flight
	// solves are still delivered.
	payoutCtx, stopPayouts := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPayouts()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return payouts.Run(payoutCtx)
	})
	g.Go(func() error {
		logger.Info("Serveur démarré", "addr", "http://localhost:"+cfg.Port,
			"owner", cfg.OwnerID, "store", cfg.Store, "unsolved", len(unsolved))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		stopPayouts()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Serveur arrêté", "pending_rewards", payouts.Pending())
	return nil
}
