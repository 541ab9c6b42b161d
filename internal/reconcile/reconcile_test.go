package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/result"
	"nickandperla.net/tally/internal/rewrite"
)

func run(text string, rewrites map[int]rewrite.Rewrite, opts ...Option) result.Set {
	return Reconcile(text, document.Evaluate(text), rewrites, opts...)
}

func rw(rhs string) rewrite.Rewrite {
	return rewrite.Rewrite{Kind: rewrite.KindRewrite, RHS: rhs, Confidence: 0.9}
}

func valueOf(t *testing.T, set result.Set, line int) float64 {
	t.Helper()
	l, ok := set[line]
	require.True(t, ok, "line %d has no result", line)
	require.NotNil(t, l.Value, "line %d has nil value", line)
	return *l.Value
}

func TestLocalAlwaysWins(t *testing.T) {
	set := run("Rent = 1200", map[int]rewrite.Rewrite{0: rw("5")})
	assert.Equal(t, 1200.0, valueOf(t, set, 0))
	assert.Equal(t, result.SourceLocal, set[0].Source)
}

func TestRewriteFillsTextLine(t *testing.T) {
	set := run("Rent = 1200\nhire two engineers", map[int]rewrite.Rewrite{
		1: {Kind: rewrite.KindRewrite, RHS: "2 * 150000", Explanation: "Two engineers"},
	})
	assert.Equal(t, 300000.0, valueOf(t, set, 1))
	assert.Equal(t, result.SourceAI, set[1].Source)
	assert.Equal(t, result.KindCalc, set[1].Kind)
	assert.Equal(t, "Two engineers", set[1].Explanation)
}

func TestSelfReferenceDropped(t *testing.T) {
	set := run("Staffing: double the staffing", map[int]rewrite.Rewrite{0: rw("Staffing * 2")})
	assert.Empty(t, set)
}

func TestHeaderAndNote(t *testing.T) {
	set := run("Budget 2024\nremember to check", map[int]rewrite.Rewrite{
		0: {Kind: rewrite.KindHeader, Explanation: "Budget"},
		1: {Kind: rewrite.KindNote, Explanation: "Reminder"},
	})
	require.Contains(t, set, 0)
	assert.Nil(t, set[0].Value)
	assert.Equal(t, result.KindHeader, set[0].Kind)
	assert.Equal(t, result.SourceAI, set[0].Source)
	assert.Equal(t, result.KindNote, set[1].Kind)
}

func TestIgnoredKinds(t *testing.T) {
	set := run("what about taxes?\nlorem", map[int]rewrite.Rewrite{
		0: {Kind: rewrite.KindQuestion, RHS: "1"},
		1: {Kind: rewrite.KindSkip},
	})
	assert.Empty(t, set)
}

func TestAIContributorUpdatesTaggedSum(t *testing.T) {
	text := "Groceries: 150 #food\ndinner out with friends #food\nsum: food\nlater snacks #food"
	set := run(text, map[int]rewrite.Rewrite{1: rw("80"), 3: rw("20")})

	assert.Equal(t, 80.0, valueOf(t, set, 1))
	assert.Equal(t, 230.0, valueOf(t, set, 2))
	assert.Equal(t, result.SourceLocal, set[2].Source)
	assert.Contains(t, set[2].Explanation, "2 lines")
}

func TestSumRegisteredUnderLabelAndAlias(t *testing.T) {
	text := "Groceries: 150 #food\nFood\nsum: food\nhalf the food budget\nfood for a quarter"
	set := run(text, map[int]rewrite.Rewrite{
		3: rw("Food / 2"),
		4: rw("sum:food * 3"),
	})
	assert.Equal(t, 75.0, valueOf(t, set, 3))
	assert.Equal(t, 450.0, valueOf(t, set, 4))
}

func TestLineReferencesAndTagCalls(t *testing.T) {
	text := "Rent = 1200\nwith a ten percent markup\nGroceries: 150 #food\nDining: 80 #food\nfood per week\nfirst line again"
	set := run(text, map[int]rewrite.Rewrite{
		1: rw("L{prev} * 1.1"),
		4: rw("sum(food) / 4"),
		5: rw("L{0} + L{99}"),
	})
	assert.InDelta(t, 1320.0, valueOf(t, set, 1), 1e-9)
	assert.Equal(t, 57.5, valueOf(t, set, 4))
	assert.Equal(t, 1200.0, valueOf(t, set, 5))
}

func TestTagSharingVariableName(t *testing.T) {
	text := "Food: 100 #food\nDrinks: 50 #food\nhow much on food and drinks"
	set := run(text, map[int]rewrite.Rewrite{2: rw("sum(food)")})
	assert.Equal(t, 150.0, valueOf(t, set, 2))
	assert.Equal(t, "(150)", set[2].Formula)
}

func TestAIVariableChain(t *testing.T) {
	text := "Delta: next one\nCharlie: next one\nBravo: next one\nAlpha: ten"
	rewrites := map[int]rewrite.Rewrite{
		0: rw("Charlie + 1"),
		1: rw("Bravo + 1"),
		2: rw("Alpha + 1"),
		3: rw("10"),
	}
	set := run(text, rewrites)
	assert.Equal(t, 13.0, valueOf(t, set, 0))
	assert.Equal(t, 12.0, valueOf(t, set, 1))
	assert.Equal(t, 11.0, valueOf(t, set, 2))
	assert.Equal(t, 10.0, valueOf(t, set, 3))

	capped := run(text, rewrites, WithMaxIterations(1))
	assert.NotContains(t, capped, 0)
	assert.Equal(t, 11.0, valueOf(t, capped, 2))
}

func TestCycleTerminates(t *testing.T) {
	text := "Alpha: double of bravo\nBravo: half of alpha"
	set := run(text, map[int]rewrite.Rewrite{
		0: rw("Bravo * 2"),
		1: rw("Alpha / 2"),
	})
	assert.Empty(t, set)
}

func TestAssignmentRewriteBindsName(t *testing.T) {
	text := "Salaries = two engineers at 150000 each\nBudget = salaries plus office"
	set := run(text, map[int]rewrite.Rewrite{
		0: rw("2 * 150000"),
		1: rw("Salaries + 1000"),
	})
	assert.Equal(t, result.KindVariable, set[0].Kind)
	assert.Equal(t, 301000.0, valueOf(t, set, 1))
}

func TestMinConfidence(t *testing.T) {
	low := rewrite.Rewrite{Kind: rewrite.KindRewrite, RHS: "42", Confidence: 0.3}
	set := run("the answer", map[int]rewrite.Rewrite{0: low}, WithMinConfidence(0.5))
	assert.Empty(t, set)

	set = run("the answer", map[int]rewrite.Rewrite{0: low})
	assert.Equal(t, 42.0, valueOf(t, set, 0))
}

func TestLegacyFormula(t *testing.T) {
	set := run("pay two engineers", map[int]rewrite.Rewrite{
		0: {Formula: "Salaries = 2 * 150000"},
	})
	assert.Equal(t, 300000.0, valueOf(t, set, 0))
}

func TestLocalResultNotMutated(t *testing.T) {
	text := "Groceries: 150 #food\nsnacks #food\nsum: food"
	local := document.Evaluate(text)
	before := local.Lines.Clone()

	set := Reconcile(text, local, map[int]rewrite.Rewrite{1: rw("20")})
	assert.Equal(t, 170.0, valueOf(t, set, 2))
	assert.True(t, before.Equal(local.Lines))
}
