package rules

import (
	"fmt"
	"reflect"
)

// Resolve превращает селектор в фабрику стратегии.
//
// Допустимые селекторы: nil (AlwaysLegal), Factory или func() LegalAction,
// reflect.Type типа, реализующего LegalAction, и имя из DefaultRegistry.
// Готовый экземпляр стратегии отклоняется с ErrNotAType, всё остальное с ErrNotLegalAction.
func Resolve(selector any) (Factory, error) {
	return resolve(selector, builtin)
}

func resolve(selector any, reg *Registry) (Factory, error) {
	switch s := selector.(type) {
	case nil:
		return NewAlwaysLegal, nil
	case Factory:
		if s == nil {
			return NewAlwaysLegal, nil
		}
		return s, nil
	case func() LegalAction:
		if s == nil {
			return NewAlwaysLegal, nil
		}
		return Factory(s), nil
	case reflect.Type:
		return factoryOf(s)
	case string:
		return reg.Lookup(s)
	case LegalAction:
		return nil, configErr(fmt.Sprintf("instance of %T", s), ErrNotAType)
	default:
		return nil, configErr(fmt.Sprintf("%T", selector), ErrNotLegalAction)
	}
}

// factoryOf строит фабрику по reflect.Type. Экземпляр создается из нулевого значения.
func factoryOf(t reflect.Type) (Factory, error) {
	if t == nil {
		return NewAlwaysLegal, nil
	}
	if t.Kind() == reflect.Interface {
		return nil, configErr("interface "+t.String(), ErrNotLegalAction)
	}

	switch {
	case t.Kind() == reflect.Pointer && t.Implements(legalActionType):
		elem := t.Elem()
		return func() LegalAction {
			return reflect.New(elem).Interface().(LegalAction)
		}, nil
	case t.Implements(legalActionType):
		if t.Kind() == reflect.Func {
			// у функционального типа нет пригодного нулевого значения
			return nil, configErr("func type "+t.String()+" has no usable zero value", ErrNotLegalAction)
		}
		return func() LegalAction {
			return zeroOf(t).Interface().(LegalAction)
		}, nil
	case reflect.PointerTo(t).Implements(legalActionType):
		return func() LegalAction {
			return reflect.New(t).Interface().(LegalAction)
		}, nil
	}

	return nil, configErr("type "+t.String(), ErrNotLegalAction)
}

// zeroOf возвращает пустое, но не nil значение для map, slice и chan.
func zeroOf(t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.Map:
		return reflect.MakeMap(t)
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0)
	case reflect.Chan:
		return reflect.MakeChan(t, 0)
	}
	return reflect.New(t).Elem()
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
