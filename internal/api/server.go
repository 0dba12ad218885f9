// Package api — HTTP фасад гейта легальности.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/engine"
	"github.com/xela07ax/gridrules/internal/infra/auth"
	"github.com/xela07ax/gridrules/internal/state"
	"go.uber.org/zap"
)

// StateWriter принимает снимки от симулятора (state.Store)
type StateWriter interface {
	Put(ctx context.Context, st domain.State) error
}

// VerdictReader читает журнал (postgres.VerdictRepo). Может отсутствовать.
type VerdictReader interface {
	ListByEnv(ctx context.Context, envID string, limit int) ([]domain.Verdict, error)
}

type Server struct {
	router   *chi.Mux
	logger   *zap.Logger
	arbiter  *engine.Arbiter
	states   StateWriter
	verdicts VerdictReader
	ruleSets []string

	validator auth.TokenValidator
}

type Deps struct {
	Arbiter   *engine.Arbiter
	States    StateWriter
	Verdicts  VerdictReader       // nil — журнал не подключен
	Validator auth.TokenValidator // nil — авторизация выключена
	RuleSets  []string            // доступные имена наборов правил
}

func NewServer(d Deps, logger *zap.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Named("api"),
		arbiter:   d.Arbiter,
		states:    d.States,
		verdicts:  d.Verdicts,
		ruleSets:  d.RuleSets,
		validator: d.Validator,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, domain.ScopeLegalityCheck, s.logger))

		r.Get("/v1/rules", s.getRules)
		r.Post("/v1/legality", s.checkInline)

		r.Route("/v1/environments/{id}", func(r chi.Router) {
			r.Put("/state", s.putState)
			r.Post("/legality", s.checkEnv)
			r.Get("/verdicts", s.listVerdicts)
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// GET /v1/rules
func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.arbiter.Rules(),
		"available": s.ruleSets,
	})
}

// POST /v1/environments/{id}/legality, тело — domain.Action
func (s *Server) checkEnv(w http.ResponseWriter, r *http.Request) {
	envID := chi.URLParam(r, "id")

	var action domain.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action: "+err.Error())
		return
	}

	v, err := s.arbiter.Check(r.Context(), envID, action)
	s.respond(w, v, err)
}

// POST /v1/legality, тело — engine.CheckRequest
func (s *Server) checkInline(w http.ResponseWriter, r *http.Request) {
	var req engine.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	var (
		v   domain.Verdict
		err error
	)
	switch {
	case req.State != nil:
		v, err = s.arbiter.CheckState(r.Context(), *req.State, req.Action)
	case req.EnvID != "":
		v, err = s.arbiter.Check(r.Context(), req.EnvID, req.Action)
	default:
		writeError(w, http.StatusBadRequest, "env_id or state is required")
		return
	}
	s.respond(w, v, err)
}

// PUT /v1/environments/{id}/state
func (s *Server) putState(w http.ResponseWriter, r *http.Request) {
	envID := chi.URLParam(r, "id")

	var st domain.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state: "+err.Error())
		return
	}
	if st.EnvID != "" && st.EnvID != envID {
		writeError(w, http.StatusBadRequest, "env_id mismatch")
		return
	}
	st.EnvID = envID

	if err := s.states.Put(r.Context(), st); err != nil {
		s.logger.Error("failed to save state", zap.String("env_id", envID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to save state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/environments/{id}/verdicts?limit=N
func (s *Server) listVerdicts(w http.ResponseWriter, r *http.Request) {
	if s.verdicts == nil {
		writeError(w, http.StatusNotImplemented, "verdict journal is not configured")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be in [1, 1000]")
			return
		}
		limit = n
	}

	out, err := s.verdicts.ListByEnv(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.logger.Error("failed to list verdicts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list verdicts")
		return
	}
	if out == nil {
		out = []domain.Verdict{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) respond(w http.ResponseWriter, v domain.Verdict, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}

	switch {
	case v.ID != "":
		// Стратегия не смогла вынести вердикт: отдаем его с текстом ошибки
		writeJSON(w, http.StatusUnprocessableEntity, v)
	case errors.Is(err, state.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, engine.ErrStateUnavailable):
		s.logger.Error("state unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "environment state unavailable")
	default:
		s.logger.Error("check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
