package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/procurepro/tbe/internal/pkg/logger"
	"github.com/procurepro/tbe/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the evaluation API. Evaluations are cached, stored and announced
on the event bus configured under 'bus' (memory or kafka).`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	cmd.Flags().String("host", "", "HTTP server host (overrides config)")
	cmd.Flags().String("bus", "", "event bus type: memory, kafka, none (overrides config)")
	cmd.Flags().String("cache", "", "cache type: memory, redis, none (overrides config)")
	cmd.Flags().String("store", "", "record directory (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		appCfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		appCfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("bus") {
		appCfg.Bus.Type, _ = cmd.Flags().GetString("bus")
	}
	if cmd.Flags().Changed("cache") {
		appCfg.Cache.Type, _ = cmd.Flags().GetString("cache")
	}
	if cmd.Flags().Changed("store") {
		appCfg.Store.Path, _ = cmd.Flags().GetString("store")
	}
	if err := appCfg.Validate(); err != nil {
		return err
	}

	level := appCfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log := logger.New(level, appCfg.Log.Format)

	log.Info("Starting TBE server",
		"version", version,
		"addr", appCfg.Address(),
		"cache", appCfg.Cache.Type,
		"bus", appCfg.Bus.Type,
	)

	srv, err := server.New(server.ConfigFrom(appCfg, version), appCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		_ = srv.Stop(context.Background())
		return err
	case sig := <-sigCh:
		log.Info("Received signal", "signal", sig.String())
	}

	return srv.Stop(context.Background())
}
