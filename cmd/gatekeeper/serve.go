package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/debug"
	"github.com/rhuss/gatekeeper/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := server.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	store, err := server.NewKeyStore(ctx, cfg.Auth.KeyStore)
	if err != nil {
		return fmt.Errorf("opening key store: %w", err)
	}
	var handlerOpts []server.HandlerOption
	if store != nil {
		defer store.Close()
		handlerOpts = append(handlerOpts, server.WithKeyStore(store))
	}

	reg, err := server.NewRegistry(cfg.Auth, store)
	if err != nil {
		return fmt.Errorf("building strategy registry: %w", err)
	}
	chain, err := server.NewChain(cfg.Auth, reg)
	if err != nil {
		return fmt.Errorf("building strategy chain: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewHandler(cfg, chain, server.NewLimiter(cfg.Auth.RateLimit), logger, handlerOpts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.Server.Port,
			"strategies", cfg.Auth.Strategies,
			"default_decision", cfg.Auth.DefaultDecision,
			"key_store", cfg.Auth.KeyStore.Type,
			"debug", debug.Categories(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
