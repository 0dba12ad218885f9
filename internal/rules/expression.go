package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/xela07ax/gridrules/internal/domain"
)

// Expression — правило на CEL. В выражении доступны переменные action и env
// (см. domain.Action.AsMap и domain.State.AsMap), результат обязан быть bool.
//
//	action.lines_impacted.size() <= env.parameters.max_line_status_changed
type Expression struct {
	name string
	expr string
	prg  cel.Program
}

var celEnv = mustCELEnv()

func mustCELEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.DynType),
		cel.Variable("env", cel.DynType),
	)
	if err != nil {
		panic(fmt.Sprintf("rules: failed to create CEL environment: %v", err))
	}
	return env
}

// CompileExpression проверяет выражение и возвращает фабрику стратегии.
// Программа компилируется один раз, экземпляры её разделяют.
func CompileExpression(name, expr string) (Factory, error) {
	ast, iss := celEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, configErr(fmt.Sprintf("expression %q", name), fmt.Errorf("%w: %v", ErrNotLegalAction, iss.Err()))
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, configErr(fmt.Sprintf("expression %q", name), fmt.Errorf("%w: result type is %s, want bool", ErrNotLegalAction, out))
	}

	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, configErr(fmt.Sprintf("expression %q", name), fmt.Errorf("%w: %v", ErrNotLegalAction, err))
	}

	return func() LegalAction {
		return &Expression{name: name, expr: expr, prg: prg}
	}, nil
}

func (e *Expression) IsLegal(action domain.Action, env domain.State) (bool, error) {
	out, _, err := e.prg.Eval(map[string]any{
		"action": action.AsMap(),
		"env":    env.AsMap(),
	})
	if err != nil {
		return false, fmt.Errorf("rules: expression %q: %w", e.name, err)
	}

	legal, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rules: expression %q returned %T, want bool", e.name, out.Value())
	}
	return legal, nil
}

func (e *Expression) Name() string { return e.name }

// Source — исходный текст выражения
func (e *Expression) Source() string { return e.expr }
