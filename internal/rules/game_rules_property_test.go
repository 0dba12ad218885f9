package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/xela07ax/gridrules/internal/domain"
)

func genAction() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.IntRange(0, 3)),
	).Map(func(v []any) domain.Action {
		return domain.Action{
			ChangeLineStatus: v[0].([]int),
			ChangeBus:        v[1].([]int),
		}
	})
}

func genState() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(6, gen.IntRange(0, 2)),
		gen.SliceOfN(4, gen.IntRange(0, 2)),
		gen.IntRange(0, 3),
		gen.IntRange(0, 3),
	).Map(func(v []any) domain.State {
		return domain.State{
			LineStatus:   make([]bool, 6),
			LineCooldown: v[0].([]int),
			SubCooldown:  v[1].([]int),
			Parameters: domain.Parameters{
				MaxLineStatusChanged: v[2].(int),
				MaxSubChanged:        v[3].(int),
			},
		}
	})
}

// Property: gate.IsLegal(a, s) == strategy.IsLegal(a, s) for any a, s
func TestGameRules_ForwardingIsExact(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, name := range DefaultRegistry().Names() {
		name := name
		properties.Property(name+" forwards exactly", prop.ForAll(
			func(a domain.Action, s domain.State) bool {
				g, err := builtin.Build(name)
				if err != nil {
					return false
				}
				reference, _ := builtin.Lookup(name)

				got, gotErr := g.IsLegal(a, s)
				want, wantErr := reference().IsLegal(a, s)
				return got == want && (gotErr == nil) == (wantErr == nil)
			},
			genAction(),
			genState(),
		))
	}

	properties.TestingRun(t)
}

// Property: the default gate accepts everything
func TestGameRules_DefaultAcceptsAll(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("default gate is permissive", prop.ForAll(
		func(a domain.Action, s domain.State) bool {
			g, err := New(nil)
			if err != nil {
				return false
			}
			ok, err := g.IsLegal(a, s)
			return ok && err == nil
		},
		genAction(),
		genState(),
	))

	properties.TestingRun(t)
}

// Property: repeated queries agree
func TestGameRules_RepeatedQueriesAgree(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	g, _ := New(NewDefaultRules)

	properties.Property("IsLegal is deterministic", prop.ForAll(
		func(a domain.Action, s domain.State) bool {
			first, err1 := g.IsLegal(a, s)
			second, err2 := g.IsLegal(a, s)
			return first == second && (err1 == nil) == (err2 == nil)
		},
		genAction(),
		genState(),
	))

	properties.TestingRun(t)
}
