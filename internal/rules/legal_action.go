// Package rules содержит гейт легальности действий (GameRules) и набор
// стратегий, между которыми он выбирает при сборке.
package rules

import (
	"reflect"

	"github.com/xela07ax/gridrules/internal/domain"
)

// LegalAction — стратегия, решающая, разрешено ли действие в текущем состоянии окружения.
type LegalAction interface {
	IsLegal(action domain.Action, env domain.State) (bool, error)
}

// Factory описывает "тип" стратегии: собирает новый экземпляр без аргументов.
// Гейт принимает фабрику, а не готовый объект, и владеет тем, что она построила.
type Factory func() LegalAction

// Named — опциональный интерфейс для человекочитаемого имени набора правил.
type Named interface {
	Name() string
}

var legalActionType = reflect.TypeOf((*LegalAction)(nil)).Elem()

// NameOf возвращает имя стратегии: Name(), если реализован, иначе имя Go-типа.
func NameOf(s LegalAction) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	t := reflect.TypeOf(s)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
