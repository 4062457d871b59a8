package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/internal/middleware"
	"github.com/ai-text-analyzer-go/internal/models"
	"github.com/ai-text-analyzer-go/internal/services/ai"
	"github.com/ai-text-analyzer-go/internal/services/cache"
	"github.com/ai-text-analyzer-go/internal/services/prompt"
	"github.com/ai-text-analyzer-go/internal/services/quota"
	"github.com/ai-text-analyzer-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

var (
	errBurstLimited = errors.New("burst limit exceeded")
	errNoAPIKey     = errors.New("no API key configured")
)

// ModelInvoker is the part of ai.Invoker the pipeline needs.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string) (*ai.Result, error)
	Configured() bool
}

// Analyzer runs the analyze pipeline: validate, throttle, admit, assemble,
// invoke, respond.
type Analyzer struct {
	ledger      quota.Ledger
	assembler   *prompt.Assembler
	invoker     ModelInvoker
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewAnalyzer creates the pipeline
func NewAnalyzer(
	cfg *config.Config,
	ledger quota.Ledger,
	invoker ModelInvoker,
	cache cache.Service,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Analyzer {
	return &Analyzer{
		ledger:      ledger,
		assembler:   prompt.NewAssembler(cfg.Context.MaxPageContentChars),
		invoker:     invoker,
		cache:       cache,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
	}
}

// Handle processes one analysis request for callerID at now.
//
// Quota is consumed at admission and never returned, so a request that
// later fails upstream still counts against the caller's day.
func (a *Analyzer) Handle(ctx context.Context, req models.AnalysisRequest, callerID string, now time.Time) (*models.AnalysisResponse, error) {
	log := logger.WithRequest(a.logger, middleware.RequestIDFrom(ctx), callerID)

	if err := validate(req); err != nil {
		a.metrics.RecordAnalysis("invalid_input")
		return nil, err
	}

	if !a.rateLimiter.Allow(callerID) {
		a.metrics.RecordBurstLimited()
		a.metrics.RecordAnalysis("burst_limited")
		return nil, apperrors.New(apperrors.KindRateLimitExceeded, "Too many requests. Please slow down and try again in a minute.", errBurstLimited)
	}

	start := time.Now()
	admission, err := a.ledger.Admit(ctx, callerID, now)
	if err != nil {
		a.metrics.RecordLedgerOperation("admit", "error", time.Since(start))
		a.metrics.RecordAnalysis("internal")
		log.WithError(err).Error("Quota ledger unavailable")
		return nil, apperrors.Internal(err)
	}
	a.metrics.RecordLedgerOperation("admit", "success", time.Since(start))

	if !admission.Allowed {
		a.metrics.RecordQuotaDenied()
		a.metrics.RecordAnalysis("quota_denied")
		log.WithFields(logrus.Fields{
			"date":  admission.Date,
			"count": admission.Count,
			"limit": admission.Limit,
		}).Warn("Daily quota exceeded")
		return nil, apperrors.RateLimitExceeded("")
	}

	contextBlock := a.assembler.BuildContext(req.SelectedText, req.PageURL, req.PageContent)
	fullPrompt := prompt.BuildPrompt(req.Question, contextBlock)
	usage := models.UsageOf(req)
	log.WithFields(logrus.Fields{
		logger.FieldQuestion: req.Question,
		logger.FieldPrompt:   fullPrompt,
	}).Debug("Prompt built")

	if entry, found := a.cache.Get(ctx, fullPrompt); found {
		a.metrics.RecordCacheHit()
		a.metrics.RecordAnalysis("success")
		log.WithField("model", entry.Model).Info("Answer served from cache")
		return &models.AnalysisResponse{
			Answer: entry.Answer,
			Usage:  usage,
			Model:  entry.Model,
			Cached: true,
		}, nil
	}
	a.metrics.RecordCacheMiss()

	result, err := a.invoker.Invoke(ctx, fullPrompt)
	a.recordAttempts(result)
	if err != nil {
		a.metrics.RecordAnalysis("failed")
		log.WithFields(logrus.Fields{
			"attempts": attemptCount(result),
			"error":    errorDetail(err),
		}).Error("Analysis failed")
		return nil, apperrors.AnalysisFailed(err)
	}

	if err := a.cache.Set(ctx, fullPrompt, result.Text, result.Model); err != nil {
		log.WithError(err).Warn("Failed to cache answer")
	}

	a.metrics.RecordAnalysis("success")
	log.WithFields(logrus.Fields{
		"model":              result.Model,
		"attempts":           len(result.Attempts),
		"selected_text_len":  usage.SelectedTextLength,
		"question_len":       usage.QuestionLength,
		"page_content_len":   usage.PageContentLength,
		"remaining_requests": admission.Remaining(),
	}).Info("Analysis completed")

	return &models.AnalysisResponse{
		Answer: result.Text,
		Usage:  usage,
		Model:  result.Model,
	}, nil
}

// Usage reports the caller's consumption for the day of now.
func (a *Analyzer) Usage(ctx context.Context, callerID string, now time.Time) (*models.UsageResponse, error) {
	start := time.Now()
	count, err := a.ledger.Usage(ctx, callerID, now)
	if err != nil {
		a.metrics.RecordLedgerOperation("usage", "error", time.Since(start))
		return nil, apperrors.Internal(err)
	}
	a.metrics.RecordLedgerOperation("usage", "success", time.Since(start))

	limit := a.ledger.Limit()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &models.UsageResponse{
		Usage:     count,
		Date:      quota.DateKey(now, a.ledger.Location()),
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// CheckKey sends a fixed prompt through the candidates to confirm the
// provider key works. It does not touch the quota ledger.
func (a *Analyzer) CheckKey(ctx context.Context) (*ai.Result, error) {
	if !a.invoker.Configured() {
		return nil, apperrors.New(apperrors.KindInvalidInput, "No API key configured.", errNoAPIKey)
	}

	result, err := a.invoker.Invoke(ctx, prompt.CheckPrompt)
	a.recordAttempts(result)
	if err != nil {
		a.logger.WithField("error", errorDetail(err)).Error("API key check failed")
		return result, apperrors.AnalysisFailed(err)
	}

	a.logger.WithField("model", result.Model).Info("API key check succeeded")
	return result, nil
}

func (a *Analyzer) recordAttempts(result *ai.Result) {
	if result == nil {
		return
	}
	for _, attempt := range result.Attempts {
		status := "success"
		if !attempt.Succeeded() {
			status = "error"
		}
		a.metrics.RecordModelAttempt(attempt.Model, status, attempt.Duration)
	}
}

// validate treats whitespace-only fields as missing.
func validate(req models.AnalysisRequest) error {
	if strings.TrimSpace(req.SelectedText) == "" || strings.TrimSpace(req.Question) == "" {
		return apperrors.InvalidInput("")
	}
	return nil
}

func attemptCount(result *ai.Result) int {
	if result == nil {
		return 0
	}
	return len(result.Attempts)
}

func errorDetail(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}
