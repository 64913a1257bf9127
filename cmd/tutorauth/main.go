// Command tutorauth runs the authentication service for the tutor app.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "tutorauth",
		Short:         "Authentication and session service for the tutor app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	load := func() (*Config, *slog.Logger, error) {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return nil, nil, err
		}
		logger := newLogger(cfg)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(newServeCmd(load), newMigrateCmd(load))
	return root
}

type loader func() (*Config, *slog.Logger, error)

// newLogger emits JSON in production and text otherwise
func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Production() {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler).With("service", "tutorauth")
}
