package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAType — вместо типа (фабрики) передан уже собранный экземпляр.
	ErrNotAType = errors.New("expected a type, got an instance")
	// ErrNotLegalAction — селектор не описывает стратегию легальности.
	ErrNotLegalAction = errors.New("type does not implement LegalAction")
)

// ConfigurationError возвращается только при сборке гейта.
type ConfigurationError struct {
	Selector string // Что именно передали (тип значения или имя)
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rules: %v: %s", e.Err, e.Selector)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(selector string, err error) *ConfigurationError {
	return &ConfigurationError{Selector: selector, Err: err}
}

// IndexError — действие ссылается на элемент сети, которого нет в снимке.
type IndexError struct {
	Kind  string // "line" или "substation"
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("rules: %s index %d out of range [0, %d)", e.Kind, e.Index, e.Size)
}
