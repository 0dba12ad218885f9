package rules

import "github.com/xela07ax/gridrules/internal/domain"

// LookParam ограничивает размах одного действия лимитами из env.Parameters:
// не больше MaxLineStatusChanged линий и MaxSubChanged подстанций за шаг.
type LookParam struct{}

func NewLookParam() LegalAction { return LookParam{} }

func (LookParam) IsLegal(action domain.Action, env domain.State) (bool, error) {
	if len(action.LinesImpacted()) > env.Parameters.MaxLineStatusChanged {
		return false, nil
	}
	if len(action.SubstationsImpacted()) > env.Parameters.MaxSubChanged {
		return false, nil
	}
	return true, nil
}

func (LookParam) Name() string { return NameLookParam }
