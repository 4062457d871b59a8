package apperrors

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindModelUnavailable     Kind = "model_unavailable"
	KindUpstreamTransport    Kind = "upstream_transport"
	KindAllModelsUnavailable Kind = "all_models_unavailable"
	KindAnalysisFailed       Kind = "analysis_failed"
	KindInternal             Kind = "internal"
)

type Error struct {
	Kind Kind
	// SafeMessage is the only text that may reach a caller.
	SafeMessage string
	// Cause keeps the upstream error for server-side logs.
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.SafeMessage); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Detail renders the kind, safe message and cause chain for logs.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.SafeMessage != "" {
		b.WriteString(": ")
		b.WriteString(e.SafeMessage)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func defaultSafeMessage(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return "Selected text and question are required."
	case KindRateLimitExceeded:
		return "Rate limit exceeded. Please try again tomorrow."
	case KindModelUnavailable:
		return "Model unavailable."
	case KindUpstreamTransport:
		return "Upstream provider could not be reached."
	case KindAllModelsUnavailable:
		return "No available models."
	case KindAnalysisFailed:
		return "Failed to analyze text. Please try again."
	default:
		return "Internal server error."
	}
}

func New(kind Kind, safeMessage string, cause error) error {
	msg := strings.TrimSpace(safeMessage)
	if msg == "" {
		msg = defaultSafeMessage(kind)
	}
	return &Error{
		Kind:        kind,
		SafeMessage: msg,
		Cause:       cause,
	}
}

func InvalidInput(msg string) error {
	return New(KindInvalidInput, msg, nil)
}

func RateLimitExceeded(msg string) error {
	return New(KindRateLimitExceeded, msg, nil)
}

func ModelUnavailable(err error) error {
	return New(KindModelUnavailable, "", err)
}

func UpstreamTransport(err error) error {
	return New(KindUpstreamTransport, "", err)
}

func AllModelsUnavailable(last error) error {
	return New(KindAllModelsUnavailable, "", last)
}

func AnalysisFailed(err error) error {
	return New(KindAnalysisFailed, "", err)
}

func Internal(err error) error {
	return New(KindInternal, "", err)
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return defaultSafeMessage(KindInternal)
}
