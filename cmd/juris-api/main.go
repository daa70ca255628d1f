package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/config"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "juris-api",
		Short: "Juris process movement backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newBatchCommand(), newSyncCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Rotate logs into this file instead of stderr")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("datajud-base-url", defaults.GetString("datajud.base_url"), "Datajud public API base URL")
	cmd.PersistentFlags().Int("stale-after-hours", defaults.GetInt("movements.stale_after_hours"), "Snapshot age that triggers a background refresh")
	cmd.PersistentFlags().Bool("batch-enabled", defaults.GetBool("batch.enabled"), "Run the daily synchronization batch")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "datajud.base_url", "datajud-base-url")
	bindFlag(cmd, "movements.stale_after_hours", "stale-after-hours")
	bindFlag(cmd, "batch.enabled", "batch-enabled")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newBatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Synchronize every case with a process number once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.scheduler.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d success=%d error=%d\n", result.Total, result.Success, result.Error)
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <case-id>",
		Short: "Synchronize a single case against Datajud",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			snapshot, err := app.synchronizer.SyncCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if snapshot == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no process found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot=%s tribunal=%s\n", snapshot.ID, snapshot.TribunalAlias)
			return nil
		},
	}
}

func runServer(ctx context.Context) error {
	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: app.sessions,
		Reader:           app.reader,
		Synchronizer:     app.synchronizer,
		Cases:            app.cases,
		SyncLogs:         app.store,
		Realtime:         app.realtime,
		Metrics:          app.metrics.Handler(),
		StaleAfter:       app.config.StaleAfter,
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	if app.config.BatchEnabled {
		go func() {
			defer close(schedulerDone)
			if err := app.scheduler.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error("batch scheduler stopped", zap.Error(err))
			}
		}()
	} else {
		close(schedulerDone)
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serveErr = httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		serveErr = err
		stop()
	}

	<-schedulerDone
	app.reader.Wait()
	return serveErr
}
