package domain

import "time"

// Verdict — результат проверки легальности, который уходит клиенту и в журнал.
type Verdict struct {
	ID      string `json:"id"`       // UUID вердикта
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	EnvID   string `json:"env_id"`
	Step    int64  `json:"step"`

	Rules string `json:"rules"` // Имя активного набора правил
	Legal bool   `json:"legal"`
	Error string `json:"error,omitempty"` // Ошибка стратегии, если была

	Action     Action    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
