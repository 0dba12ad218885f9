package rules

import "github.com/xela07ax/gridrules/internal/domain"

// AlwaysLegal разрешает любое действие. Используется по умолчанию.
type AlwaysLegal struct{}

func NewAlwaysLegal() LegalAction { return AlwaysLegal{} }

func (AlwaysLegal) IsLegal(domain.Action, domain.State) (bool, error) { return true, nil }

func (AlwaysLegal) Name() string { return NameAlwaysLegal }
