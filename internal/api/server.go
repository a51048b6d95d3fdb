// Package api serves the read-only operations endpoint: health, metrics,
// match and profile lookups and a ranking preview.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/bot"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/pbaille/coffeechat/internal/store"
	"go.uber.org/zap"
)

// Server handles HTTP requests for the ops API
type Server struct {
	store   store.Store
	svc     *bot.Service
	metrics *metrics.Collector
	logger  *zap.Logger
	addr    string
}

// New creates a new API server
func New(s store.Store, svc *bot.Service, m *metrics.Collector, logger *zap.Logger, addr string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: s, svc: svc, metrics: m, logger: logger.Named("api"), addr: addr}
}

// Handler builds the route tree
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/matches/{id}", s.getMatch)
	r.Get("/profiles/{memberID}", s.getProfile)
	r.Get("/guilds/{guildID}/members/{memberID}/candidates", s.listCandidates)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.svc != nil && s.svc.Negotiator() != nil {
		resp["live_negotiations"] = s.svc.Negotiator().LiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		s.writeErr(w, err, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CandidatesResponse is the ranking preview
type CandidatesResponse struct {
	GuildID    string                 `json:"guild_id"`
	MemberID   string                 `json:"user_id"`
	Candidates []similarity.Candidate `json:"candidates"`
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	memberID := chi.URLParam(r, "memberID")

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ranked, err := s.svc.Candidates(r.Context(), guildID, memberID)
	if err != nil {
		s.writeErr(w, err, "profile not found")
		return
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		ranked = []similarity.Candidate{}
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{GuildID: guildID, MemberID: memberID, Candidates: ranked})
}

func (s *Server) writeErr(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	switch apperror.KindOf(err) {
	case apperror.NotFound:
		writeError(w, http.StatusNotFound, apperror.Message(err, notFound))
	case apperror.Validation:
		writeError(w, http.StatusBadRequest, apperror.Message(err, "invalid request"))
	case apperror.Unavailable:
		writeError(w, http.StatusServiceUnavailable, apperror.Message(err, "unavailable"))
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
