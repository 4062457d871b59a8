package models

import (
	"time"
	"unicode/utf8"
)

// AnalysisRequest is the body of POST /analyze.
type AnalysisRequest struct {
	SelectedText string `json:"selectedText"`
	Question     string `json:"question"`
	PageURL      string `json:"pageUrl,omitempty"`
	PageContent  string `json:"pageContent,omitempty"`
}

// Usage echoes input sizes in characters. It is not a token count.
type Usage struct {
	SelectedTextLength int `json:"selectedTextLength"`
	QuestionLength     int `json:"questionLength"`
	PageContentLength  int `json:"pageContentLength"`
}

// UsageOf measures the request fields the way the popup counts them.
func UsageOf(req AnalysisRequest) Usage {
	return Usage{
		SelectedTextLength: utf8.RuneCountInString(req.SelectedText),
		QuestionLength:     utf8.RuneCountInString(req.Question),
		PageContentLength:  utf8.RuneCountInString(req.PageContent),
	}
}

type AnalysisResponse struct {
	Answer     string `json:"answer"`
	AnswerHTML string `json:"answerHtml,omitempty"`
	Usage      Usage  `json:"usage"`

	// Not serialized; kept for logs and metrics.
	Model  string `json:"-"`
	Cached bool   `json:"-"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type UsageResponse struct {
	Usage     int    `json:"usage"`
	Date      string `json:"date"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

type KeyCheckResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// QuotaKey identifies one caller's bucket for one calendar day.
type QuotaKey struct {
	CallerID string
	Date     string
}

// CacheEntry represents a cached answer
type CacheEntry struct {
	Answer    string
	Model     string
	CreatedAt time.Time
}
