// Package api exposes the assistant over HTTP: a WebSocket chat session,
// the document upload endpoint and the category list.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/PolicyPilot/agent/agents/orchestrator"
	ingestx "github.com/tanpawarit/PolicyPilot/agent/ingest"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8000"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"http://localhost:5173,http://localhost:5174,http://localhost:3000"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" split_words:"true" default:"52428800"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"30s"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" split_words:"true" default:"120s"`
}

// ChatService runs one conversation turn.
type ChatService interface {
	HandleMessage(ctx context.Context, threadID string, text string) (orchestratorx.Reply, error)
}

// Uploader accepts a document for background ingestion.
type Uploader interface {
	Submit(ctx context.Context, filename, category string, content []byte) (ingestx.Job, error)
}

type Server struct {
	cfg      Config
	chat     ChatService
	uploads  Uploader
	upgrader websocket.Upgrader
	origins  map[string]struct{}
}

func New(cfg Config, chat ChatService, uploads Uploader) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat service is required")
	}
	if uploads == nil {
		return nil, errors.New("uploader is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}

	s := &Server{
		cfg:     cfg,
		chat:    chat,
		uploads: uploads,
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", handleCategories)
		r.Post("/upload", s.handleUpload)
	})
	r.Get("/ws/chat", s.handleChat)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return corsHandler.Handler(r)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Handler(),
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: s.cfg.IdleTimeout,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// checkOrigin admits non-browser clients and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		logger := log.Logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		logger.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
