package rules

import "github.com/xela07ax/gridrules/internal/domain"

// PreventReconnection запрещает трогать линии и подстанции, у которых не истек cooldown,
// и подключать линии, отключенные по обслуживанию или перегрузке.
type PreventReconnection struct{}

func NewPreventReconnection() LegalAction { return PreventReconnection{} }

func (PreventReconnection) IsLegal(action domain.Action, env domain.State) (bool, error) {
	for _, line := range action.LinesImpacted() {
		if line < 0 || line >= len(env.LineCooldown) {
			return false, &IndexError{Kind: "line", Index: line, Size: len(env.LineCooldown)}
		}
		if env.LineCooldown[line] > 0 {
			return false, nil
		}
	}

	for _, sub := range action.SubstationsImpacted() {
		if sub < 0 || sub >= len(env.SubCooldown) {
			return false, &IndexError{Kind: "substation", Index: sub, Size: len(env.SubCooldown)}
		}
		if env.SubCooldown[sub] > 0 {
			return false, nil
		}
	}

	// TimeBeforeReconnect может отсутствовать в снимке: тогда ограничений нет
	if len(env.TimeBeforeReconnect) > 0 {
		for _, line := range action.Reconnects() {
			if line >= len(env.TimeBeforeReconnect) {
				return false, &IndexError{Kind: "line", Index: line, Size: len(env.TimeBeforeReconnect)}
			}
			if env.TimeBeforeReconnect[line] > 0 {
				return false, nil
			}
		}
	}

	return true, nil
}

func (PreventReconnection) Name() string { return NamePreventReconnection }
