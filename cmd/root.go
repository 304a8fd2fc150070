package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/resistornet/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// cfg holds defaults <- config file <- environment; flags override it
	// per command when explicitly set
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "resistornet",
	Short: "Series-parallel resistor network synthesis",
	Long: `resistornet searches for series-parallel networks of standard resistors
whose equivalent resistance approximates a target value, using randomized
restarts with table-driven hill climbing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		setupLogger(level)
		return nil
	},
}

func setupLogger(name string) {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML or JSON)")
}
