package domain

import "strconv"

// Parameters — ограничения окружения, которые читают стратегии легальности.
type Parameters struct {
	MaxLineStatusChanged int `json:"max_line_status_changed" yaml:"max_line_status_changed"`
	MaxSubChanged        int `json:"max_sub_changed" yaml:"max_sub_changed"`
}

// DefaultParameters совпадают с дефолтами симулятора: одна линия и одна подстанция за шаг.
func DefaultParameters() Parameters {
	return Parameters{MaxLineStatusChanged: 1, MaxSubChanged: 1}
}

// State — снимок окружения на конкретном шаге эпизода.
// Снимки пишет внешний симулятор, шлюз только читает.
type State struct {
	EnvID string `json:"env_id" yaml:"env_id"`
	Step  int64  `json:"step" yaml:"step"`

	LineStatus []bool `json:"line_status" yaml:"line_status"`
	// Сколько шагов осталось до разрешения следующего воздействия на линию / подстанцию
	LineCooldown []int `json:"line_cooldown" yaml:"line_cooldown"`
	SubCooldown  []int `json:"sub_cooldown" yaml:"sub_cooldown"`
	// Линии, отключенные по обслуживанию или перегрузке, нельзя подключить до истечения счетчика
	TimeBeforeReconnect []int `json:"time_before_reconnect" yaml:"time_before_reconnect"`

	Parameters Parameters `json:"parameters" yaml:"parameters"`
}

// NLines — число линий в снимке
func (s State) NLines() int { return len(s.LineStatus) }

// NSubs — число подстанций в снимке
func (s State) NSubs() int { return len(s.SubCooldown) }

// AsMap готовит представление снимка для CEL-выражений.
func (s State) AsMap() map[string]any {
	return map[string]any{
		"env_id":                s.EnvID,
		"step":                  s.Step,
		"n_lines":               int64(s.NLines()),
		"n_subs":                int64(s.NSubs()),
		"line_status":           s.LineStatus,
		"line_cooldown":         toInt64s(s.LineCooldown),
		"sub_cooldown":          toInt64s(s.SubCooldown),
		"time_before_reconnect": toInt64s(s.TimeBeforeReconnect),
		"parameters": map[string]any{
			"max_line_status_changed": int64(s.Parameters.MaxLineStatusChanged),
			"max_sub_changed":         int64(s.Parameters.MaxSubChanged),
		},
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
