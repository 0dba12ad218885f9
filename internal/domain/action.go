package domain

import "sort"

// LineStatus значения для SetLineStatus
const (
	LineConnect    = 1
	LineDisconnect = -1
)

// Action — предлагаемое агентом воздействие на сеть.
// Гейт не разбирает его сам, поля читают только стратегии легальности.
type Action struct {
	// SetLineStatus: индекс линии -> +1 (подключить) / -1 (отключить)
	SetLineStatus map[int]int `json:"set_line_status,omitempty" yaml:"set_line_status,omitempty"`
	// ChangeLineStatus: индексы линий, статус которых инвертируется
	ChangeLineStatus []int `json:"change_line_status,omitempty" yaml:"change_line_status,omitempty"`

	// SetBus: индекс подстанции -> назначение шин для её элементов
	SetBus map[int][]int `json:"set_bus,omitempty" yaml:"set_bus,omitempty"`
	// ChangeBus: подстанции, у которых переключаются шины
	ChangeBus []int `json:"change_bus,omitempty" yaml:"change_bus,omitempty"`

	// Redispatch: индекс генератора -> дельта мощности (MW). На топологию не влияет.
	Redispatch map[int]float64 `json:"redispatch,omitempty" yaml:"redispatch,omitempty"`
}

// LinesImpacted возвращает отсортированный список линий, статус которых затрагивает действие.
func (a Action) LinesImpacted() []int {
	set := make(map[int]struct{}, len(a.SetLineStatus)+len(a.ChangeLineStatus))
	for idx, v := range a.SetLineStatus {
		if v != 0 {
			set[idx] = struct{}{}
		}
	}
	for _, idx := range a.ChangeLineStatus {
		set[idx] = struct{}{}
	}
	return sortedKeys(set)
}

// SubstationsImpacted возвращает отсортированный список подстанций с изменением топологии.
func (a Action) SubstationsImpacted() []int {
	set := make(map[int]struct{}, len(a.SetBus)+len(a.ChangeBus))
	for idx, buses := range a.SetBus {
		if len(buses) > 0 {
			set[idx] = struct{}{}
		}
	}
	for _, idx := range a.ChangeBus {
		set[idx] = struct{}{}
	}
	return sortedKeys(set)
}

// Reconnects возвращает линии, которые действие явно подключает.
func (a Action) Reconnects() []int {
	set := make(map[int]struct{})
	for idx, v := range a.SetLineStatus {
		if v == LineConnect {
			set[idx] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// IsNoop — действие ничего не меняет
func (a Action) IsNoop() bool {
	return len(a.LinesImpacted()) == 0 && len(a.SubstationsImpacted()) == 0 && len(a.Redispatch) == 0
}

// AsMap готовит плоское представление для CEL-выражений и аудита.
func (a Action) AsMap() map[string]any {
	redispatch := make(map[string]any, len(a.Redispatch))
	for idx, v := range a.Redispatch {
		redispatch[itoa(idx)] = v
	}
	return map[string]any{
		"lines_impacted":       toInt64s(a.LinesImpacted()),
		"substations_impacted": toInt64s(a.SubstationsImpacted()),
		"reconnects":           toInt64s(a.Reconnects()),
		"redispatch":           redispatch,
		"noop":                 a.IsNoop(),
	}
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
