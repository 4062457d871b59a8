package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ai-text-analyzer-go/internal/apperrors"
	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/internal/i18n"
	"github.com/ai-text-analyzer-go/internal/models"
	"github.com/ai-text-analyzer-go/pkg/markdown"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxCallerIDLength = 128

// Routes exposes the analyzer over HTTP.
type Routes struct {
	analyzer  *Analyzer
	localizer *i18n.Localizer
	cfg       config.ServerConfig
	logger    *logrus.Logger
	now       func() time.Time
}

func NewRoutes(cfg config.ServerConfig, analyzer *Analyzer, localizer *i18n.Localizer, logger *logrus.Logger) *Routes {
	return &Routes{
		analyzer:  analyzer,
		localizer: localizer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts every route at the root and again under /api.
func (rt *Routes) Register(router *mux.Router) {
	rt.register(router.PathPrefix("/api").Subrouter())
	rt.register(router)
}

func (rt *Routes) register(r *mux.Router) {
	r.HandleFunc("/analyze", rt.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/usage/{callerId}", rt.handleUsage).Methods(http.MethodGet)
	if rt.cfg.EnableTestEndpoint {
		r.HandleFunc("/test-key", rt.handleTestKey).Methods(http.MethodGet)
	}
}

func (rt *Routes) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeMessage(w, r, http.StatusRequestEntityTooLarge, i18n.MsgInvalidBody)
			return
		}
		rt.writeMessage(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}

	// Admitted requests run to completion even if the caller disconnects;
	// the quota is already spent.
	ctx := context.WithoutCancel(r.Context())

	resp, err := rt.analyzer.Handle(ctx, req, rt.callerID(r), rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		resp.AnswerHTML = markdown.ToHTML(resp.Answer)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (rt *Routes) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "OK",
		Timestamp: rt.now().UTC().Format(time.RFC3339),
	})
}

func (rt *Routes) handleUsage(w http.ResponseWriter, r *http.Request) {
	callerID := strings.TrimSpace(mux.Vars(r)["callerId"])
	if callerID == "" || len(callerID) > maxCallerIDLength {
		rt.writeMessage(w, r, http.StatusBadRequest, i18n.MsgInvalidInput)
		return
	}

	resp, err := rt.analyzer.Usage(r.Context(), callerID, rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Routes) handleTestKey(w http.ResponseWriter, r *http.Request) {
	lang := r.Header.Get("Accept-Language")
	timestamp := rt.now().UTC().Format(time.RFC3339)

	result, err := rt.analyzer.CheckKey(context.WithoutCancel(r.Context()))
	if err != nil {
		status := statusFor(err)
		msgID := i18n.MsgTestKeyFailed
		if errors.Is(err, errNoAPIKey) {
			msgID = i18n.MsgTestKeyMissing
		}
		writeJSON(w, status, models.ErrorResponse{
			Error:     rt.localizer.Get(lang, msgID),
			Timestamp: timestamp,
		})
		return
	}

	writeJSON(w, http.StatusOK, models.KeyCheckResponse{
		Status:    "success",
		Message:   rt.localizer.Get(lang, i18n.MsgTestKeyOK),
		Response:  result.Text,
		Timestamp: timestamp,
	})
}

func (rt *Routes) handleNotFound(w http.ResponseWriter, r *http.Request) {
	rt.writeMessage(w, r, http.StatusNotFound, i18n.MsgNotFound)
}

// callerID prefers the configured client header and falls back to the
// remote address. It buckets quota; it is not an identity check.
func (rt *Routes) callerID(r *http.Request) string {
	if rt.cfg.ClientIDHeader != "" {
		if id := strings.TrimSpace(r.Header.Get(rt.cfg.ClientIDHeader)); id != "" && len(id) <= maxCallerIDLength {
			return id
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rt *Routes) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rt.writeMessage(w, r, statusFor(err), messageFor(err))
}

func (rt *Routes) writeMessage(w http.ResponseWriter, r *http.Request, status int, messageID string) {
	writeJSON(w, status, models.ErrorResponse{
		Error: rt.localizer.Get(r.Header.Get("Accept-Language"), messageID),
	})
}

func statusFor(err error) int {
	kind, _ := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	kind, _ := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindInvalidInput:
		return i18n.MsgInvalidInput
	case apperrors.KindRateLimitExceeded:
		if errors.Is(err, errBurstLimited) {
			return i18n.MsgBurstLimited
		}
		return i18n.MsgRateLimitExceeded
	case apperrors.KindAnalysisFailed:
		return i18n.MsgAnalysisFailed
	default:
		return i18n.MsgInternalError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
