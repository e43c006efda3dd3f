// Package main provides the tbe binary: technical bid evaluation from the
// command line, and the HTTP API server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/procurepro/tbe/internal/config"
	"github.com/procurepro/tbe/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tbe",
		Short: "TBE - technical bid evaluation engine",
		Long: `tbe scores vendor bids for an RFQ on price, quality, delivery and
compliance, computes total cost of ownership, and ranks the bids with a
recommendation.

Run 'tbe evaluate bids.yaml' to evaluate a bid set.
Run 'tbe serve' to start the HTTP API.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		serveCmd(),
		evaluateCmd(),
		previewCmd(),
		standardsCmd(),
		eventsCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// cliLogger logs to stderr so stdout stays machine readable. Without
// --verbose only errors are shown.
func cliLogger(cmd *cobra.Command, format string) *logger.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := "error"
	if verbose {
		level = "debug"
	}
	return logger.NewWithWriter(cmd.ErrOrStderr(), level, format)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tbe %s\n", version)
	fmt.Fprintf(w, "  commit: %s\n", commit)
	fmt.Fprintf(w, "  built:  %s\n", date)
}
