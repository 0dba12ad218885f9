package rules

import (
	"github.com/xela07ax/gridrules/internal/domain"
)

// GameRules — гейт легальности. Владеет одной стратегией, собранной при создании,
// и после этого не меняется, поэтому безопасен для конкурентных вызовов,
// если безопасна сама стратегия.
type GameRules struct {
	legalAction LegalAction
}

// New собирает гейт из фабрики стратегии. nil — разрешающий AlwaysLegal.
// Фабрика вызывается ровно один раз.
func New(factory Factory) (*GameRules, error) {
	if factory == nil {
		factory = NewAlwaysLegal
	}

	la := factory()
	if la == nil || isNilValue(la) {
		return nil, configErr("factory returned nil", ErrNotLegalAction)
	}

	return &GameRules{legalAction: la}, nil
}

// NewFrom собирает гейт из произвольного селектора (см. Resolve).
func NewFrom(selector any) (*GameRules, error) {
	factory, err := Resolve(selector)
	if err != nil {
		return nil, err
	}
	return New(factory)
}

// IsLegal отдает вердикт стратегии как есть. Ошибки стратегии не оборачиваются.
func (g *GameRules) IsLegal(action domain.Action, env domain.State) (bool, error) {
	return g.legalAction.IsLegal(action, env)
}

// Strategy возвращает экземпляр стратегии, которым владеет гейт.
func (g *GameRules) Strategy() LegalAction {
	return g.legalAction
}

// Name — имя активного набора правил
func (g *GameRules) Name() string {
	return NameOf(g.legalAction)
}
