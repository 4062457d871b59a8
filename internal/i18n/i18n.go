package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer picks caller-facing messages by Accept-Language.
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
	languages       []string
	matcher         language.Matcher
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// The default language goes first so the matcher falls back to it.
	languages := []string{cfg.DefaultLanguage}
	for _, lang := range cfg.Languages {
		if lang != cfg.DefaultLanguage {
			languages = append(languages, lang)
		}
	}

	tags := make([]language.Tag, 0, len(languages))
	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range languages {
		if _, err := bundle.LoadMessageFileFS(locales, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", lang, err)
		}
		tags = append(tags, tag)
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
		languages:       languages,
		matcher:         language.NewMatcher(tags),
	}, nil
}

// Language resolves an Accept-Language header to a loaded language.
func (l *Localizer) Language(acceptLanguage string) string {
	if acceptLanguage == "" {
		return l.defaultLanguage
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return l.defaultLanguage
	}
	_, index, confidence := l.matcher.Match(tags...)
	if confidence == language.No {
		return l.defaultLanguage
	}
	return l.languages[index]
}

// Get returns the message for the caller's Accept-Language header.
func (l *Localizer) Get(acceptLanguage, messageID string) string {
	localizer, exists := l.localizers[l.Language(acceptLanguage)]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgInvalidInput      = "invalid_input"
	MsgInvalidBody       = "invalid_body"
	MsgRateLimitExceeded = "rate_limit_exceeded"
	MsgBurstLimited      = "burst_limited"
	MsgAnalysisFailed    = "analysis_failed"
	MsgInternalError     = "internal_error"
	MsgTestKeyMissing    = "test_key_missing"
	MsgTestKeyOK         = "test_key_ok"
	MsgTestKeyFailed     = "test_key_failed"
	MsgNotFound          = "not_found"
)
