package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var errNoAPIKey = errors.New("no API key configured")

// GeminiGenerator talks to the Gemini API through the genai client.
type GeminiGenerator struct {
	client      *genai.Client
	maxTokens   int32
	temperature float32
}

func NewGeminiGenerator(ctx context.Context, cfg *config.ModelsConfig) (*GeminiGenerator, error) {
	g := &GeminiGenerator{
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
	}
	if cfg.APIKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiGenerator) Configured() bool {
	return g.client != nil
}

func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GeminiGenerator) Generate(ctx context.Context, modelName, prompt string) (string, error) {
	if g.client == nil {
		return "", apperrors.New(apperrors.KindModelUnavailable, "Gemini API key is not configured.", errNoAPIKey)
	}

	model := g.client.GenerativeModel(modelName)
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(g.maxTokens)
	}
	model.SetTemperature(g.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text, err := extractResponseText(resp)
	if err != nil {
		return "", apperrors.ModelUnavailable(err)
	}
	return text, nil
}

func extractResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("no response received from Gemini")
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			continue
		}
		var combined string
		for _, part := range candidate.Content.Parts {
			text, ok := part.(genai.Text)
			if !ok {
				continue
			}
			combined += string(text)
		}
		if combined != "" {
			return combined, nil
		}
	}
	return "", fmt.Errorf("no text parts found in Gemini response")
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}

	wrapped := fmt.Errorf("gemini generate content failed: %w", err)

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return apperrors.New(apperrors.KindModelUnavailable, "Gemini blocked the prompt or response.", wrapped)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 404:
			return apperrors.New(apperrors.KindModelUnavailable, "Gemini model not found or no access (404).", wrapped)
		case gerr.Code == 401 || gerr.Code == 403:
			return apperrors.New(apperrors.KindModelUnavailable, fmt.Sprintf("Gemini authentication failed (%d).", gerr.Code), wrapped)
		case gerr.Code == 429:
			return apperrors.New(apperrors.KindModelUnavailable, "Gemini quota exceeded (429).", wrapped)
		case gerr.Code >= 500:
			return apperrors.New(apperrors.KindModelUnavailable, fmt.Sprintf("Gemini service error (%d).", gerr.Code), wrapped)
		default:
			return apperrors.New(apperrors.KindModelUnavailable, fmt.Sprintf("Gemini request rejected (%d).", gerr.Code), wrapped)
		}
	}

	// DNS, socket and timeout failures never reached the API.
	return apperrors.UpstreamTransport(wrapped)
}
