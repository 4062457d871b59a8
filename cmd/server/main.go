package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "analyzer",
		Short:        "Text analysis API with per-caller daily quotas and model fallback",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "Path to .env file")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
	)

	return cmd
}

// load reads .env, the config file and builds the logger.
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	if err := godotenv.Load(o.envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Warning: .env file not loaded: %v\n", err)
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}
