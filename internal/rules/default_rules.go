package rules

import "github.com/xela07ax/gridrules/internal/domain"

// DefaultRules = LookParam И PreventReconnection. Первый отказ прерывает проверку.
type DefaultRules struct {
	chain []LegalAction
}

func NewDefaultRules() LegalAction {
	return &DefaultRules{chain: []LegalAction{LookParam{}, PreventReconnection{}}}
}

func (r *DefaultRules) IsLegal(action domain.Action, env domain.State) (bool, error) {
	for _, rule := range r.chain {
		ok, err := rule.IsLegal(action, env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (r *DefaultRules) Name() string { return NameDefaultRules }
