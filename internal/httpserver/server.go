// Package httpserver exposes the engine over HTTP: a single POST
// /modelcache endpoint carrying the four adapter operations, a text
// /welcome health line, and optional swagger docs and a websocket
// streaming endpoint.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/thebtf/semcache/internal/adapter"
	"github.com/thebtf/semcache/internal/engine"
)

// Server wraps chi's router around a CacheEngine.
type Server struct {
	engine *engine.CacheEngine
	router chi.Router
	srv    *http.Server
	wsUp   websocket.Upgrader
}

// New builds a Server listening on addr.
func New(eng *engine.CacheEngine, addr string) *Server {
	s := &Server{engine: eng}
	s.router = s.buildRouter()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.wsUp = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/welcome", s.handleWelcome)
	r.Get("/health", s.handleHealth)
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Post("/modelcache", s.handleModelCache)
	r.Get("/modelcache/stream", s.handleStream)

	return r
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("httpserver: listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to the semantic cache service"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.engine.Store.HealthCheck(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if info.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(info)
}

// envelope is the single request shape /modelcache accepts: Type selects
// which of the four adapter operations the rest of the fields address.
type envelope struct {
	Type     string                  `json:"type"`
	Query    *adapter.QueryRequest   `json:"query,omitempty"`
	Insert   *adapter.InsertRequest  `json:"insert,omitempty"`
	Remove   *adapter.RemoveRequest  `json:"remove,omitempty"`
	Register *adapter.RegisterRequest `json:"register,omitempty"`
}

func (s *Server) handleModelCache(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	start := time.Now()
	cacheHit := false

	switch env.Type {
	case "query":
		if env.Query == nil {
			http.Error(w, "missing query payload", http.StatusBadRequest)
			return
		}
		resp := s.engine.Adapter.Query(r.Context(), *env.Query)
		cacheHit = resp.CacheHit
		json.NewEncoder(w).Encode(resp)
	case "insert":
		if env.Insert == nil {
			http.Error(w, "missing insert payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(s.engine.Adapter.Insert(r.Context(), *env.Insert))
	case "remove":
		if env.Remove == nil {
			http.Error(w, "missing remove payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(s.engine.Adapter.Remove(r.Context(), *env.Remove))
	case "register":
		if env.Register == nil {
			http.Error(w, "missing register payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(s.engine.Adapter.Register(r.Context(), *env.Register))
	default:
		http.Error(w, "unknown request type", http.StatusBadRequest)
		return
	}

	s.engine.Metrics.RecordRequest(r.Context(), env.Type, time.Since(start), cacheHit)
}

// handleStream upgrades to a websocket and pushes a query result for each
// QueryRequest received, for clients that want to pipeline many queries over
// one connection instead of one HTTP round trip each.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUp.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("httpserver: websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var req adapter.QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.engine.Adapter.Query(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
