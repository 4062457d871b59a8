package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ai-text-analyzer-go/internal/services/ai"
	"github.com/ai-text-analyzer-go/internal/services/prompt"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Send a test prompt through the candidate models and report each attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			invoker, err := ai.NewInvokerFromConfig(cmd.Context(), &cfg.Models, log)
			if err != nil {
				return err
			}
			defer invoker.Close()

			if !invoker.Configured() {
				return errors.New("no API key configured")
			}

			out := cmd.OutOrStdout()
			result, err := invoker.Invoke(cmd.Context(), prompt.CheckPrompt)
			for _, attempt := range result.Attempts {
				status := "ok"
				if !attempt.Succeeded() {
					status = attempt.Err.Error()
				}
				fmt.Fprintf(out, "  %-24s %-8s %s\n", attempt.Model, attempt.Duration.Round(time.Millisecond), status)
			}
			if err != nil {
				return fmt.Errorf("key check failed: %w", err)
			}

			fmt.Fprintf(out, "Model %s responded: %s\n", result.Model, result.Text)
			return nil
		},
	}
}
