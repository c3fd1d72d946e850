package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().Bool("migrate", false, "apply database migrations before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	migrate, _ := cmd.Flags().GetBool("migrate")

	cfg, lg, err := setup()
	if err != nil {
		return err
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Infow("starting service-auth", "profile", cfg.Profile, "challenge_store", cfg.ChallengeStore)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, sugar, migrate)
	if err != nil {
		sugar.Errorw("startup failed", "err", err)
		return err
	}
	defer a.Close()

	handler := router.RegisterRoutes(sugar, router.Deps{
		Auth:           auth.NewHandler(a.auth, auth.NewCookieConfig(cfg.Profile, cfg.CookieDays), cfg.OperationTimeout, sugar),
		Registry:       a.registry,
		Ready:          a.ready,
		AllowedOrigins: allowedOrigins(cfg.Origin),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go challenge.RunJanitor(ctx, a.otp, cfg.PurgeInterval, sugar, a.metrics.Purged)

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		sugar.Errorw("http server failed", "err", err)
		return err
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
	return nil
}

func allowedOrigins(origin string) []string {
	if origin == "" {
		return nil
	}
	return []string{origin}
}
