package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/config"
	"github.com/gokatarajesh/notes-quiz/internal/history"
	"github.com/gokatarajesh/notes-quiz/internal/logging"
	"github.com/gokatarajesh/notes-quiz/internal/notes"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
	ws "github.com/gokatarajesh/notes-quiz/pkg/http/ws"
)

const requestIDHeader = "X-Request-ID"

// Deps are the services exposed over HTTP.
type Deps struct {
	Quizzes  *quiz.Registry
	Notes    *notes.Service
	History  *history.Store
	Hub      *ws.Hub
	Gatherer prometheus.Gatherer
}

type handlers struct {
	cfg      *config.App
	logger   zerolog.Logger
	deps     Deps
	upgrader websocket.Upgrader
}

// NewHTTPServer wires the API routes and middleware into an http.Server.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(cfg, logger, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler with CORS, real-ip, request logging
// and panic recovery applied.
func NewHandler(cfg *config.App, logger zerolog.Logger, deps Deps) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{cfg: cfg, logger: logger, deps: deps}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /v1/quiz/sessions", h.createSession)
	mux.HandleFunc("GET /v1/quiz/sessions/{id}", h.getSession)
	mux.HandleFunc("DELETE /v1/quiz/sessions/{id}", h.deleteSession)
	mux.HandleFunc("POST /v1/quiz/sessions/{id}/load", h.loadQuiz)
	mux.HandleFunc("PUT /v1/quiz/sessions/{id}/answers/{index}", h.answer)
	mux.HandleFunc("POST /v1/quiz/sessions/{id}/submit", h.submit)
	mux.HandleFunc("POST /v1/quiz/sessions/{id}/restore", h.restore)
	mux.HandleFunc("POST /v1/quiz/sessions/{id}/reset", h.reset)
	mux.HandleFunc("GET /v1/quiz/sessions/{id}/events", h.events)

	mux.HandleFunc("POST /v1/notes", h.generateNotes)
	mux.HandleFunc("GET /v1/history/{feature}", h.listHistory)
	mux.HandleFunc("GET /v1/history/{feature}/{id}", h.getHistory)
	mux.HandleFunc("DELETE /v1/history/{feature}/{id}", h.deleteHistory)

	var handler http.Handler = mux
	handler = middleware.Recoverer(handler)
	handler = requestLogger(logger)(handler)
	handler = middleware.RealIP(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})(handler)
	return handler
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			ctx := logging.WithRequestID(r.Context(), base, id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger := logging.FromContext(ctx)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}

func (h *handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.CORS.AllowedOrigins, "*") || slices.Contains(h.cfg.CORS.AllowedOrigins, origin)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
