package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snapforecast/internal/app"
	"snapforecast/internal/config"
	"snapforecast/internal/logging"
)

const version = "1.0.0"

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:   "snapctl",
		Short: "snapctl - operate the snapforecast models from the command line",
		Long: `snapctl runs feature extraction, classification, training and prediction in-process,
using the same SNAP_* configuration as the API. Output is JSON.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override SNAP_LOG_LEVEL")

	rootCmd.AddCommand(newTrainCommand())
	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newExtractCommand())
	rootCmd.AddCommand(newPredictCommand())
	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newAnalyzeCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp builds the component graph for one command and closes it afterwards.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.NewLoggerWithService("snapctl", cfg.LogLevel)

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(cmd.Context(), a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
