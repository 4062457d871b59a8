package handlers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/internal/middleware"
	"github.com/ai-text-analyzer-go/internal/models"
	"github.com/ai-text-analyzer-go/internal/services/ai"
	"github.com/ai-text-analyzer-go/internal/services/cache"
	"github.com/ai-text-analyzer-go/internal/services/prompt"
	"github.com/ai-text-analyzer-go/internal/services/quota"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeGenerator answers per model and records every call.
type fakeGenerator struct {
	mu         sync.Mutex
	replies    map[string]string
	failures   map[string]error
	prompts    []string
	calls      []string
	configured bool
}

func (g *fakeGenerator) Generate(ctx context.Context, model, p string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, model)
	g.prompts = append(g.prompts, p)
	if err, ok := g.failures[model]; ok {
		return "", err
	}
	return g.replies[model], nil
}

func (g *fakeGenerator) Configured() bool { return g.configured }
func (g *fakeGenerator) Close() error     { return nil }

func (g *fakeGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ClientIDHeader:     "X-Client-ID",
			MaxBodyBytes:       1 << 20,
			CORSOrigins:        []string{"*"},
			EnableTestEndpoint: true,
		},
		Models:    config.ModelsConfig{Candidates: []string{"m1", "m2", "m3"}},
		Quota:     config.QuotaConfig{DailyLimit: 50, Timezone: "UTC"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Cache:     config.CacheConfig{Enabled: false},
		Context:   config.ContextConfig{MaxPageContentChars: 5000},
		I18n:      config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "zh"}},
	}
}

type fixture struct {
	cfg      *config.Config
	gen      *fakeGenerator
	ledger   *quota.MemoryLedger
	analyzer *Analyzer
	cache    cache.Service
	limiter  middleware.RateLimiter
}

func newFixture(t *testing.T, cfg *config.Config, gen *fakeGenerator) *fixture {
	t.Helper()
	logger := testLogger()

	ledger := quota.NewMemoryLedger(cfg.Quota.DailyLimit, time.UTC)
	invoker := ai.NewInvoker(gen, cfg.Models.Candidates, time.Second, logger)
	answers := cache.NewCache(&cfg.Cache, logger)
	limiter := middleware.NewRateLimiter(&cfg.RateLimit, logger)
	t.Cleanup(limiter.Stop)

	return &fixture{
		cfg:      cfg,
		gen:      gen,
		ledger:   ledger,
		analyzer: NewAnalyzer(cfg, ledger, invoker, answers, limiter, middleware.NewMetrics(), logger),
		cache:    answers,
		limiter:  limiter,
	}
}

func okGenerator(answer string) *fakeGenerator {
	return &fakeGenerator{replies: map[string]string{"m1": answer}, configured: true}
}

func scenarioRequest() models.AnalysisRequest {
	return models.AnalysisRequest{
		SelectedText: "The mitochondria is the powerhouse of the cell.",
		Question:     "Why is this important?",
	}
}

func TestAnalyzer_Scenario(t *testing.T) {
	f := newFixture(t, testConfig(), okGenerator("It produces ATP."))

	resp, err := f.analyzer.Handle(context.Background(), scenarioRequest(), "1.2.3.4", testNow)
	require.NoError(t, err)

	assert.Equal(t, "It produces ATP.", resp.Answer)
	assert.Equal(t, models.Usage{SelectedTextLength: 47, QuestionLength: 22, PageContentLength: 0}, resp.Usage)
	assert.Equal(t, "m1", resp.Model)

	require.Len(t, f.gen.prompts, 1)
	sent := f.gen.prompts[0]
	assert.Contains(t, sent, `Selected Text: "The mitochondria is the powerhouse of the cell."`)
	assert.Contains(t, sent, "User Question: Why is this important?")
	assert.NotContains(t, sent, "Page URL:")
	assert.NotContains(t, sent, "Page Context:")
	assert.True(t, strings.HasSuffix(sent, prompt.AnswerCue))

	usage, err := f.ledger.Usage(context.Background(), "1.2.3.4", testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}

func TestAnalyzer_InvalidInputDoesNotConsumeQuota(t *testing.T) {
	f := newFixture(t, testConfig(), okGenerator("answer"))

	tests := []models.AnalysisRequest{
		{SelectedText: "", Question: "q"},
		{SelectedText: "text", Question: ""},
		{SelectedText: "   ", Question: "q"},
		{SelectedText: "text", Question: "\n\t"},
	}
	for _, req := range tests {
		_, err := f.analyzer.Handle(context.Background(), req, "caller", testNow)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	}

	usage, _ := f.ledger.Usage(context.Background(), "caller", testNow)
	assert.Equal(t, 0, usage)
	assert.Empty(t, f.gen.Calls())
}

func TestAnalyzer_DailyLimit(t *testing.T) {
	f := newFixture(t, testConfig(), okGenerator("answer"))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimitExceeded))
	assert.Len(t, f.gen.Calls(), 50, "denied request never reaches a model")

	_, err = f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow.Add(24*time.Hour))
	assert.NoError(t, err, "next day starts a fresh bucket")
}

func TestAnalyzer_FallbackToThirdModel(t *testing.T) {
	gen := &fakeGenerator{
		failures: map[string]error{
			"m1": apperrors.ModelUnavailable(errors.New("404")),
			"m2": errors.New("quota"),
		},
		replies:    map[string]string{"m3": "third answer"},
		configured: true,
	}
	f := newFixture(t, testConfig(), gen)

	resp, err := f.analyzer.Handle(context.Background(), scenarioRequest(), "caller", testNow)
	require.NoError(t, err)
	assert.Equal(t, "third answer", resp.Answer)
	assert.Equal(t, []string{"m1", "m2", "m3"}, gen.Calls())
}

func TestAnalyzer_AllModelsFailKeepsQuota(t *testing.T) {
	gen := &fakeGenerator{
		failures: map[string]error{
			"m1": errors.New("a"),
			"m2": errors.New("b"),
			"m3": errors.New("upstream detail that must not leak"),
		},
		configured: true,
	}
	f := newFixture(t, testConfig(), gen)

	_, err := f.analyzer.Handle(context.Background(), scenarioRequest(), "caller", testNow)
	require.Error(t, err)

	kind, _ := apperrors.KindOf(err)
	assert.Equal(t, apperrors.KindAnalysisFailed, kind)
	assert.True(t, apperrors.Is(err, apperrors.KindAllModelsUnavailable))
	assert.NotContains(t, apperrors.PublicMessage(err), "upstream detail")

	usage, _ := f.ledger.Usage(context.Background(), "caller", testNow)
	assert.Equal(t, 1, usage, "quota is not refunded on failure")
}

func TestAnalyzer_BurstLimiterDoesNotConsumeQuota(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	f := newFixture(t, cfg, okGenerator("answer"))
	ctx := context.Background()

	_, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
	require.NoError(t, err)

	_, err = f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimitExceeded))
	assert.ErrorIs(t, err, errBurstLimited)

	usage, _ := f.ledger.Usage(ctx, "caller", testNow)
	assert.Equal(t, 1, usage)
}

func TestAnalyzer_CacheHitStillConsumesQuota(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10}
	f := newFixture(t, cfg, okGenerator("cached answer"))
	ctx := context.Background()

	first, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.Answer)
	assert.Equal(t, first.Usage, second.Usage)

	assert.Len(t, f.gen.Calls(), 1)
	usage, _ := f.ledger.Usage(ctx, "caller", testNow)
	assert.Equal(t, 2, usage)
}

func TestAnalyzer_PageContentTruncated(t *testing.T) {
	f := newFixture(t, testConfig(), okGenerator("answer"))
	req := scenarioRequest()
	req.PageURL = "https://example.com/biology"
	req.PageContent = strings.Repeat("a", 6000) + "TAIL"

	resp, err := f.analyzer.Handle(context.Background(), req, "caller", testNow)
	require.NoError(t, err)
	assert.Equal(t, 6004, resp.Usage.PageContentLength, "usage reports the untruncated length")

	sent := f.gen.prompts[0]
	assert.Contains(t, sent, "Page URL: https://example.com/biology")
	assert.Contains(t, sent, "Page Context: "+strings.Repeat("a", 5000))
	assert.NotContains(t, sent, "TAIL")
}

type failingLedger struct{ quota.Ledger }

func (failingLedger) Admit(context.Context, string, time.Time) (quota.Admission, error) {
	return quota.Admission{}, errors.New("redis down")
}

func TestAnalyzer_LedgerErrorIsInternal(t *testing.T) {
	cfg := testConfig()
	gen := okGenerator("answer")
	logger := testLogger()
	limiter := middleware.NewRateLimiter(&cfg.RateLimit, logger)
	analyzer := NewAnalyzer(cfg, failingLedger{}, ai.NewInvoker(gen, cfg.Models.Candidates, time.Second, logger),
		cache.NewCache(&cfg.Cache, logger), limiter, middleware.NewMetrics(), logger)

	_, err := analyzer.Handle(context.Background(), scenarioRequest(), "caller", testNow)
	require.Error(t, err)
	kind, _ := apperrors.KindOf(err)
	assert.Equal(t, apperrors.KindInternal, kind)
	assert.Empty(t, gen.Calls())
}

func TestAnalyzer_Usage(t *testing.T) {
	f := newFixture(t, testConfig(), okGenerator("answer"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.analyzer.Handle(ctx, scenarioRequest(), "caller", testNow)
		require.NoError(t, err)
	}

	resp, err := f.analyzer.Usage(ctx, "caller", testNow)
	require.NoError(t, err)
	assert.Equal(t, &models.UsageResponse{Usage: 3, Date: "2024-03-14", Limit: 50, Remaining: 47}, resp)

	resp, err = f.analyzer.Usage(ctx, "someone-else", testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Usage)
}

func TestAnalyzer_CheckKey(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, testConfig(), &fakeGenerator{})
		_, err := f.analyzer.CheckKey(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errNoAPIKey)
		assert.Empty(t, f.gen.Calls())
	})

	t.Run("working key", func(t *testing.T) {
		f := newFixture(t, testConfig(), okGenerator("API key is working!"))
		result, err := f.analyzer.CheckKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "API key is working!", result.Text)
		assert.Equal(t, []string{prompt.CheckPrompt}, f.gen.prompts)
		assert.Equal(t, 0, f.ledger.Len(), "key check does not touch quota")
	})
}
