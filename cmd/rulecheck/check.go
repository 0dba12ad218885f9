package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/rules"
)

// errIllegal возвращается при --fail-illegal, чтобы дать ненулевой код выхода
var errIllegal = errors.New("action is illegal")

type checkOptions struct {
	rules       string
	statePath   string
	actionPath  string
	expressions []string
	failIllegal bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check an action against a state snapshot offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.rules, "rules", rules.NameDefaultRules, "rule set name")
	f.StringVar(&opts.statePath, "state", "", "state snapshot (YAML or JSON)")
	f.StringVar(&opts.actionPath, "action", "", "action (YAML or JSON)")
	f.StringArrayVar(&opts.expressions, "expr", nil, "extra CEL rule as name=expression (repeatable)")
	f.BoolVar(&opts.failIllegal, "fail-illegal", false, "exit with non-zero status when the action is illegal")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func runCheck(out io.Writer, opts checkOptions) error {
	registry, err := buildRegistry(opts.expressions)
	if err != nil {
		return err
	}
	gate, err := registry.Build(opts.rules)
	if err != nil {
		return err
	}

	var st domain.State
	if err := readInput(opts.statePath, &st); err != nil {
		return err
	}
	var action domain.Action
	if err := readInput(opts.actionPath, &action); err != nil {
		return err
	}

	legal, err := gate.IsLegal(action, st)
	if err != nil {
		return fmt.Errorf("rule set %s failed: %w", gate.Name(), err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"rules":  gate.Name(),
		"env_id": st.EnvID,
		"step":   st.Step,
		"legal":  legal,
	}); err != nil {
		return err
	}

	if opts.failIllegal && !legal {
		return errIllegal
	}
	return nil
}

func buildRegistry(exprs []string) (*rules.Registry, error) {
	registry := rules.DefaultRegistry()
	for _, e := range exprs {
		name, expr, ok := strings.Cut(e, "=")
		if !ok || name == "" || expr == "" {
			return nil, fmt.Errorf("invalid --expr %q: want name=expression", e)
		}
		if err := registry.RegisterExpression(name, expr); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// readInput читает YAML или JSON. JSON разбирается через encoding/json:
// ключи объектов там всегда строки, а yaml.v3 не приводит "2" к int в map[int]...
func readInput(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") || json.Valid(data) {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in rule sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, n := range rules.DefaultRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
