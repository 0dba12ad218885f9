package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения метки verdict
const (
	verdictLegal   = "legal"
	verdictIllegal = "illegal"
	verdictError   = "error"
)

type Metrics struct {
	// Latency: сколько заняло решение стратегии (снимок уже загружен)
	CheckDuration *prometheus.HistogramVec

	// Traffic: проверки по набору правил и вердикту
	ChecksTotal *prometheus.CounterVec

	// Errors: rate_limit, state_not_found, state_unavailable, strategy
	ErrorTotal *prometheus.CounterVec

	// Saturation: предохранитель хранилища снимков (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Журнал: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без регистратора метрики пишутся в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CheckDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridrules_check_duration_seconds",
			Help:    "Histogram of legality check latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"rules"}),

		ChecksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gridrules_checks_total",
			Help: "Total number of legality checks by verdict.",
		}, []string{"rules", "verdict"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gridrules_errors_total",
			Help: "Total number of failed checks by type.",
		}, []string{"type"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridrules_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"name"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gridrules_journal_buffer_utilization",
			Help: "Current number of verdicts in journal buffer.",
		}),
	}
}

// BreakerObserver возвращает callback для state.Options.OnBreakerChange
func (m *Metrics) BreakerObserver(name string) func(open bool) {
	return func(open bool) {
		v := 0.0
		if open {
			v = 1
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(v)
	}
}
