package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Имена встроенных наборов правил
const (
	NameAlwaysLegal         = "always_legal"
	NameLookParam           = "look_param"
	NamePreventReconnection = "prevent_reconnection"
	NameDefaultRules        = "default_rules"
)

// builtin обслуживает строковые селекторы в Resolve
var builtin = DefaultRegistry()

// Registry — таблица "имя -> фабрика" для выбора правил из конфига.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry возвращает новый реестр со всеми встроенными стратегиями.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.factories[NameAlwaysLegal] = NewAlwaysLegal
	r.factories[NameLookParam] = NewLookParam
	r.factories[NamePreventReconnection] = NewPreventReconnection
	r.factories[NameDefaultRules] = NewDefaultRules
	return r
}

// Register добавляет или заменяет фабрику.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return configErr("empty name", ErrNotLegalAction)
	}
	if f == nil {
		return configErr(fmt.Sprintf("nil factory for %q", name), ErrNotLegalAction)
	}

	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
	return nil
}

// RegisterExpression компилирует CEL-правило и регистрирует его под именем.
func (r *Registry) RegisterExpression(name, expr string) error {
	f, err := CompileExpression(name, expr)
	if err != nil {
		return err
	}
	return r.Register(name, f)
}

func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, configErr(fmt.Sprintf("unknown rule set %q", name), ErrNotLegalAction)
	}
	return f, nil
}

// Resolve как пакетный Resolve, но строковые имена ищутся в этом реестре.
func (r *Registry) Resolve(selector any) (Factory, error) {
	return resolve(selector, r)
}

// Build собирает гейт по имени набора правил.
func (r *Registry) Build(name string) (*GameRules, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(f)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
