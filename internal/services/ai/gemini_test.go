package ai

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestExtractResponseText(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		_, err := extractResponseText(nil)
		assert.Error(t, err)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := extractResponseText(&genai.GenerateContentResponse{})
		assert.Error(t, err)
	})

	t.Run("joins text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Text("world")}}},
			},
		}
		text, err := extractResponseText(resp)
		require.NoError(t, err)
		assert.Equal(t, "Hello, world", text)
	})

	t.Run("skips empty candidates", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: nil},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("second")}}},
			},
		}
		text, err := extractResponseText(resp)
		require.NoError(t, err)
		assert.Equal(t, "second", text)
	})
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind apperrors.Kind
		contains string
	}{
		{name: "not found", err: &googleapi.Error{Code: 404}, wantKind: apperrors.KindModelUnavailable, contains: "404"},
		{name: "forbidden", err: &googleapi.Error{Code: 403}, wantKind: apperrors.KindModelUnavailable, contains: "403"},
		{name: "quota", err: &googleapi.Error{Code: 429}, wantKind: apperrors.KindModelUnavailable, contains: "429"},
		{name: "server", err: &googleapi.Error{Code: 503}, wantKind: apperrors.KindModelUnavailable, contains: "503"},
		{name: "safety block", err: &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}}, wantKind: apperrors.KindModelUnavailable, contains: "blocked"},
		{name: "recitation block", err: &genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonRecitation}}, wantKind: apperrors.KindModelUnavailable, contains: "blocked"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "generativelanguage.googleapis.com"}, wantKind: apperrors.KindUpstreamTransport},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: apperrors.KindUpstreamTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGeminiError(tt.err)
			kind, ok := apperrors.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, kind)
			assert.True(t, errors.Is(err, tt.err))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}

	assert.NoError(t, classifyGeminiError(nil))
}

func TestGeminiGenerator_WithoutKey(t *testing.T) {
	gen, err := NewGeminiGenerator(context.Background(), &config.ModelsConfig{Provider: config.ProviderGemini})
	require.NoError(t, err)
	assert.False(t, gen.Configured())
	assert.NoError(t, gen.Close())

	_, err = gen.Generate(context.Background(), "gemini-1.5-flash", "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoAPIKey)
}

func TestNewGenerator_UnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), &config.ModelsConfig{Provider: "bogus"})
	assert.Error(t, err)
}
