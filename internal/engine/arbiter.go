package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/rules"
	"github.com/xela07ax/gridrules/internal/state"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited      = errors.New("engine: rate limit exceeded")
	ErrStateUnavailable = errors.New("engine: environment state unavailable")
)

// StateSource — откуда берутся снимки окружений (state.Store)
type StateSource interface {
	Get(ctx context.Context, envID string) (domain.State, error)
}

// Journal — асинхронный журнал вердиктов (audit.Journal)
type Journal interface {
	Log(v domain.Verdict)
	Len() int
}

// Arbiter — пайплайн проверки: лимит -> снимок -> гейт -> метрики -> журнал.
type Arbiter struct {
	gate    *rules.GameRules
	states  StateSource
	journal Journal
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// NewArbiter собирает пайплайн. nil limiter снимает ограничение.
func NewArbiter(gate *rules.GameRules, states StateSource, journal Journal, limiter *rate.Limiter, metrics *Metrics, logger *zap.Logger) *Arbiter {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Arbiter{
		gate:    gate,
		states:  states,
		journal: journal,
		limiter: limiter,
		metrics: metrics,
		logger:  logger.Named("arbiter"),
	}
}

// Rules — имя активного набора правил
func (a *Arbiter) Rules() string {
	return a.gate.Name()
}

// Check загружает снимок окружения и проверяет действие.
// Ошибка стратегии возвращается без обертки вместе с вердиктом, в котором заполнено Error.
func (a *Arbiter) Check(ctx context.Context, envID string, action domain.Action) (domain.Verdict, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		a.metrics.ErrorTotal.WithLabelValues("rate_limit").Inc()
		return domain.Verdict{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	st, err := a.states.Get(ctx, envID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			a.metrics.ErrorTotal.WithLabelValues("state_not_found").Inc()
			return domain.Verdict{}, err
		}
		a.metrics.ErrorTotal.WithLabelValues("state_unavailable").Inc()
		return domain.Verdict{}, fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}

	return a.decide(ctx, st, action)
}

// CheckState проверяет действие на снимке, переданном самим клиентом.
func (a *Arbiter) CheckState(ctx context.Context, st domain.State, action domain.Action) (domain.Verdict, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		a.metrics.ErrorTotal.WithLabelValues("rate_limit").Inc()
		return domain.Verdict{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return a.decide(ctx, st, action)
}

func (a *Arbiter) decide(ctx context.Context, st domain.State, action domain.Action) (domain.Verdict, error) {
	start := time.Now()
	name := a.gate.Name()

	legal, err := a.gate.IsLegal(action, st)

	v := domain.Verdict{
		ID:         uuid.New().String(),
		TraceID:    TraceIDFromContext(ctx),
		EnvID:      st.EnvID,
		Step:       st.Step,
		Rules:      name,
		Legal:      legal && err == nil,
		Action:     action,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
	}

	label := verdictIllegal
	switch {
	case err != nil:
		label = verdictError
		v.Error = err.Error()
		a.metrics.ErrorTotal.WithLabelValues("strategy").Inc()
		a.logger.Warn("legality strategy failed",
			zap.String("trace_id", v.TraceID), zap.String("env_id", v.EnvID), zap.Error(err))
	case legal:
		label = verdictLegal
	}
	a.metrics.ChecksTotal.WithLabelValues(name, label).Inc()
	a.metrics.CheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if a.journal != nil {
		a.journal.Log(v)
		a.metrics.JournalBufferFill.Set(float64(a.journal.Len()))
	}

	return v, err
}
