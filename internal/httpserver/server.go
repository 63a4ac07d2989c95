package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/config"
	"github.com/JohnHCunningham/housing-website/internal/proxy"
	"github.com/JohnHCunningham/housing-website/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router *echo.Echo
	addr   string
	log    zerolog.Logger
}

// Handlers are the feature endpoints mounted by New.
type Handlers struct {
	Chat  *proxy.Handler
	Voice *realtime.Handler
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, h Handlers, log zerolog.Logger) *Server {
	e := NewRouter(log, cfg.CORSOrigins)

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if cfg.KnowledgeDir != "" {
		e.Static("/chatbot-training", cfg.KnowledgeDir)
	}
	if h.Chat != nil {
		h.Chat.Register(e, "/api/chat")
	}
	if h.Voice != nil {
		h.Voice.Register(e, "/ws/voice")
	}

	return &Server{Router: e, addr: cfg.HTTPAddress, log: log}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("graceful shutdown failed")
		_ = server.Close()
		return err
	}
	return nil
}
