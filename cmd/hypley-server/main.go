// Command hypley-server runs the assistant backend: the REST API, the live
// voice websocket, and the Stripe webhook, backed by Postgres and the Gemini
// API.
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

	"github.com/hypley-ia/hypley-live/internal/dotenv"
	"github.com/hypley-ia/hypley-live/pkg/billing"
	"github.com/hypley-ia/hypley-live/pkg/blob"
	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/gateway/auth"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/gateway/lifecycle"
	"github.com/hypley-ia/hypley-live/pkg/gateway/live/sessions"
	"github.com/hypley-ia/hypley-live/pkg/gateway/server"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "hypley-server: %v\n", err)
		os.Exit(1)
	}
	if err := run(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "hypley-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	gem, err := gemini.New(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Store:     st,
		Gemini:    gem,
		Tracker:   sessions.NewTracker(),
		Lifecycle: &lifecycle.Lifecycle{},
	}
	if cfg.AuthEnabled() {
		deps.Auth = auth.NewAuthenticator(cfg.WorkOSAPIKey, cfg.WorkOSClientID, st, cfg.SignupTokens, logger)
	} else {
		logger.Warn("workos keys missing, signup and login disabled")
	}
	if cfg.BillingEnabled() {
		deps.Billing = billing.New(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.CheckoutSuccessURL,
			CancelURL:     cfg.CheckoutCancelURL,
		}, st, logger)
	} else {
		logger.Warn("stripe key missing, billing disabled")
	}
	if cfg.UploadsEnabled() {
		deps.Blob = blob.New(blob.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   cfg.S3BaseURL,
		})
	}

	srv := server.New(cfg, deps, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}

	logger.Info("starting server", "addr", cfg.Addr,
		"auth", cfg.AuthEnabled(), "billing", cfg.BillingEnabled(), "uploads", cfg.UploadsEnabled())

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Fail readiness first so the load balancer stops routing here, then
	// close listeners and drain the live sessions.
	deps.Lifecycle.SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !deps.Tracker.Wait(waitCtx) {
		n := deps.Tracker.CancelAll()
		logger.Warn("live sessions force-canceled", "count", n)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
