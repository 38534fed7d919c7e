package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storyforge/shield/internal/auth"
	"github.com/storyforge/shield/internal/config"
	"github.com/storyforge/shield/internal/cryptosvc"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/monitor"
	"github.com/storyforge/shield/internal/secrets"
	"github.com/storyforge/shield/internal/validation"
)

// Deps are the subsystem handles the boundary wires together. Any nil
// dependency disables the routes that need it.
type Deps struct {
	Schemas   *validation.SchemaSet
	Limiter   *validation.RateLimiter
	Moderator *validation.Moderator
	Verifier  *auth.Verifier
	Secrets   *secrets.Manager
	Crypto    *cryptosvc.Service
	Monitor   *monitor.Monitor
	Detector  *monitor.Detector
	Backend   StoryBackend
}

// Server is the HTTP boundary: security headers, validation, token
// verification and rate limiting in front of the protected routes.
type Server struct {
	cfg       config.ServerConfig
	rateLimit config.RateLimitConfig
	deps      Deps
	logger    *logging.Logger
	server    *http.Server
}

func New(cfg config.ServerConfig, rateLimit config.RateLimitConfig, deps Deps, logger *logging.Logger) *Server {
	return &Server{
		cfg:       cfg,
		rateLimit: rateLimit,
		deps:      deps,
		logger:    logger,
	}
}

// Handler builds the full route tree with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/story/prompt", s.handleStoryPrompt)

	var handler http.Handler = mux
	handler = requestLog(s.logger)(handler)
	handler = requestID(handler)
	handler = securityHeaders(handler)
	return handler
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		s.logger.Info("listening on %s", s.cfg.Listen)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
