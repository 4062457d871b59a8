package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/sirupsen/logrus"
)

var errEmptyResponse = errors.New("empty response from model")

// Generator issues a single generation call for one model of one provider.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	// Configured reports whether the provider has credentials to try.
	Configured() bool
	Close() error
}

// Attempt records the outcome of one candidate call.
type Attempt struct {
	Model    string
	Text     string
	Err      error
	Duration time.Duration
}

func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// Result carries the winning text and every attempt made to get it. It is
// returned even when every candidate failed.
type Result struct {
	Text     string
	Model    string
	Attempts []Attempt
}

// Invoker tries an ordered candidate list and returns the first success.
type Invoker struct {
	generator  Generator
	candidates []string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewInvoker creates an invoker. The candidate order is fixed for its lifetime.
func NewInvoker(generator Generator, candidates []string, timeout time.Duration, logger *logrus.Logger) *Invoker {
	return &Invoker{
		generator:  generator,
		candidates: append([]string(nil), candidates...),
		timeout:    timeout,
		logger:     logger,
	}
}

// NewInvokerFromConfig builds the configured provider and wraps it.
func NewInvokerFromConfig(ctx context.Context, cfg *config.ModelsConfig, logger *logrus.Logger) (*Invoker, error) {
	generator, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"provider":   cfg.Provider,
		"candidates": strings.Join(cfg.Candidates, ","),
		"configured": generator.Configured(),
	}).Info("Model invoker initialized")

	return NewInvoker(generator, cfg.Candidates, cfg.RequestTimeout, logger), nil
}

// NewGenerator returns the generator for cfg.Provider.
func NewGenerator(ctx context.Context, cfg *config.ModelsConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

func (inv *Invoker) Candidates() []string {
	return append([]string(nil), inv.candidates...)
}

func (inv *Invoker) Configured() bool {
	return inv.generator.Configured()
}

func (inv *Invoker) Close() error {
	return inv.generator.Close()
}

// Invoke folds over the candidates, stopping at the first non-empty reply.
// When all fail the error is AllModelsUnavailable wrapping the last failure.
func (inv *Invoker) Invoke(ctx context.Context, prompt string) (*Result, error) {
	result := &Result{Attempts: make([]Attempt, 0, len(inv.candidates))}

	var last error = errors.New("no candidate models configured")
	for _, model := range inv.candidates {
		inv.logger.WithField("model", model).Debug("Trying model")

		attempt := inv.try(ctx, model, prompt)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Succeeded() {
			result.Text = attempt.Text
			result.Model = attempt.Model
			inv.logger.WithFields(logrus.Fields{
				"model":    model,
				"attempts": len(result.Attempts),
				"duration": attempt.Duration,
			}).Info("Model answered")
			return result, nil
		}

		last = attempt.Err
		inv.logger.WithFields(logrus.Fields{
			"model":    model,
			"duration": attempt.Duration,
			"error":    errorDetail(attempt.Err),
		}).Warn("Model failed, trying next candidate")
	}

	return result, apperrors.AllModelsUnavailable(last)
}

func (inv *Invoker) try(ctx context.Context, model, prompt string) Attempt {
	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := inv.generator.Generate(callCtx, model, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = apperrors.ModelUnavailable(errEmptyResponse)
	}
	if err != nil {
		if _, ok := apperrors.KindOf(err); !ok {
			err = apperrors.ModelUnavailable(err)
		}
		text = ""
	}

	return Attempt{
		Model:    model,
		Text:     text,
		Err:      err,
		Duration: time.Since(start),
	}
}

func errorDetail(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
