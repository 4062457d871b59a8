package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/internal/i18n"
	"github.com/ai-text-analyzer-go/internal/middleware"
	chimw "github.com/go-chi/chi/v5/middleware"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server owns the public HTTP listener.
type Server struct {
	cfg     config.ServerConfig
	server  *http.Server
	routes  *Routes
	handler http.Handler
	logger  *logrus.Logger
}

func NewServer(cfg *config.Config, analyzer *Analyzer, localizer *i18n.Localizer, metrics *middleware.Metrics, logger *logrus.Logger) *Server {
	routes := NewRoutes(cfg.Server, analyzer, localizer, logger)

	router := mux.NewRouter()
	routes.Register(router)
	router.NotFoundHandler = http.HandlerFunc(routes.handleNotFound)

	var handler http.Handler = router
	handler = middleware.AccessLog(logger, metrics, router)(handler)
	handler = middleware.MaxBody(cfg.Server.MaxBodyBytes)(handler)
	handler = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(cfg.Server.CORSOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders(corsHeaders(cfg.Server.ClientIDHeader)),
		gorillahandlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(handler)
	handler = chimw.Recoverer(handler)
	if cfg.Server.TrustProxy {
		handler = chimw.RealIP(handler)
	}
	handler = middleware.RequestID(handler)

	return &Server{
		cfg:     cfg.Server,
		routes:  routes,
		handler: handler,
		logger:  logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.WithField("address", s.server.Addr).Info("Starting HTTP server")
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}

func corsHeaders(clientIDHeader string) []string {
	headers := []string{"Content-Type", "Accept-Language", middleware.RequestIDHeader}
	if clientIDHeader != "" {
		headers = append(headers, clientIDHeader)
	}
	return headers
}
