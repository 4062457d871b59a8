package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
)

// maxResponseBytes caps provider response bodies.
const maxResponseBytes = 8 << 20

// OpenAIGenerator calls any OpenAI-compatible chat/completions endpoint.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func NewOpenAIGenerator(cfg *config.ModelsConfig) *OpenAIGenerator {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (g *OpenAIGenerator) Configured() bool {
	return g.apiKey != ""
}

func (g *OpenAIGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// Generate performs exactly one request; the invoker owns fallback.
func (g *OpenAIGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", apperrors.New(apperrors.KindModelUnavailable, "API key is not configured.", errNoAPIKey)
	}

	reqBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": g.temperature,
	}
	if g.maxTokens > 0 {
		reqBody["max_tokens"] = g.maxTokens
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", apperrors.UpstreamTransport(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperrors.UpstreamTransport(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(
			apperrors.KindModelUnavailable,
			fmt.Sprintf("Model request failed (%d).", resp.StatusCode),
			fmt.Errorf("model %s returned status %d: %s", model, resp.StatusCode, string(body)),
		)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperrors.ModelUnavailable(fmt.Errorf("failed to parse response: %w", err))
	}

	if result.Error.Message != "" {
		return "", apperrors.ModelUnavailable(fmt.Errorf("AI error: %s", result.Error.Message))
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", apperrors.ModelUnavailable(errEmptyResponse)
	}

	return result.Choices[0].Message.Content, nil
}
