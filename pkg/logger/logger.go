package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field names that carry caller text. They are reduced to a length unless
// content logging is enabled.
const (
	FieldPrompt       = "prompt"
	FieldSelectedText = "selected_text"
	FieldQuestion     = "question"
	FieldPageContent  = "page_content"
	FieldAnswer       = "answer"
)

var contentFields = []string{FieldPrompt, FieldSelectedText, FieldQuestion, FieldPageContent, FieldAnswer}

// NewLogger builds the service logger: level, formatter and output from cfg,
// a service field on every line, and caller text redacted by default.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	case "file":
		logDir := filepath.Dir(cfg.File.Path)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}

		// Use lumberjack for log rotation
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize, // megabytes
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge, // days
			Compress:   true,
		})
	default:
		logger.SetOutput(os.Stdout)
	}

	logger.AddHook(&fieldsHook{service: cfg.Service, redact: !cfg.LogContent})

	return logger, nil
}

// fieldsHook stamps the service name and redacts caller text fields.
type fieldsHook struct {
	service string
	redact  bool
}

func (h *fieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fieldsHook) Fire(entry *logrus.Entry) error {
	if h.service != "" {
		if _, ok := entry.Data["service"]; !ok {
			entry.Data["service"] = h.service
		}
	}
	if !h.redact {
		return nil
	}
	for _, key := range contentFields {
		if v, ok := entry.Data[key]; ok {
			entry.Data[key] = redacted(v)
		}
	}
	return nil
}

func redacted(v interface{}) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("[redacted %d chars]", utf8.RuneCountInString(s))
	}
	return "[redacted]"
}

// WithRequest scopes log lines to one HTTP request.
func WithRequest(logger *logrus.Logger, requestID, callerID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"caller_id":  callerID,
	})
}
