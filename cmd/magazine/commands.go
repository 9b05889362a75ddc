package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/college-magazine/pkg/magazine"
	"github.com/tendant/college-magazine/pkg/magazine/api"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cfg.Build(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			server := api.NewServer(rt.Service, api.Options{
				Admin:            cfg.AdminCredentials(),
				Sessions:         api.NewSessions(cfg.SecretKey, cfg.SessionTTL, cfg.IsProduction()),
				MaxContentLength: cfg.MaxContentLength,
				RequestTimeout:   cfg.RequestTimeout,
				Logger:           logger,
			})

			httpServer := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           server.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("college magazine server starting", "port", cfg.Port, "environment", cfg.Environment)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exited")
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	return cmd
}

// NewStatsCommand creates the stats command
func NewStatsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print record counts for every collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := cfg.Build(cmd.Context(), newLogger(cfg))
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			counts, err := rt.Service.Content().Counts(cmd.Context())
			if err != nil {
				return err
			}
			return printCounts(cmd.OutOrStdout(), counts, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print counts as JSON")
	return cmd
}

func printCounts(w io.Writer, counts *magazine.DashboardCounts, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	fmt.Fprintf(w, "News:     %d\n", counts.News)
	fmt.Fprintf(w, "Events:   %d\n", counts.Events)
	fmt.Fprintf(w, "Gallery:  %d\n", counts.Gallery)
	fmt.Fprintf(w, "Students: %d\n", counts.Students)
	return nil
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres schema migrations",
		Long:  `Apply pending Postgres schema migrations, or report the schema version with --status. Only valid when DATABASE_URL points at Postgres.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			current, latest, err := cfg.MigrationStatus(cmd.Context(), !statusOnly)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (latest %d)\n", current, latest)
			if current < latest {
				fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) pending\n", latest-current)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the schema version without migrating")
	return cmd
}
