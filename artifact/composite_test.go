package artifact

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMath() *Composite {
	c := New("Answer grade-school math word problems.")
	c.AddFactor("Instruction", "Solve the problem.")
	c.AddFactor("Input", "{input}")
	c.AddFactor("Rationale", "Think step by step.")
	return c
}

func TestAddFactor_NoOverwrite(t *testing.T) {
	c := newMath()
	require.NoError(t, c.UpdateStats("Instruction", func(s *FactorStats) { s.Selections = 3 }))

	c.AddFactor("Instruction", "something else")

	content, ok := c.Content("Instruction")
	require.True(t, ok)
	assert.Equal(t, "Solve the problem.", content)
	st, _ := c.Stats("Instruction")
	assert.Equal(t, 3, st.Selections)
	assert.Equal(t, []string{"Instruction", "Input", "Rationale"}, c.FactorNames())
}

func TestAddFactor_DefaultStats(t *testing.T) {
	c := newMath()
	for _, name := range c.FactorNames() {
		st, ok := c.Stats(name)
		require.True(t, ok, name)
		assert.Equal(t, FactorStats{BestScoreEver: -1.0}, st)
		assert.False(t, st.Scored())
	}
}

func TestUpdateFactor(t *testing.T) {
	c := newMath()
	require.NoError(t, c.UpdateStats("Rationale", func(s *FactorStats) { s.PatienceCounter = 2 }))

	require.NoError(t, c.UpdateFactor("Rationale", "Reason carefully."))
	content, _ := c.Content("Rationale")
	assert.Equal(t, "Reason carefully.", content)
	st, _ := c.Stats("Rationale")
	assert.Equal(t, 2, st.PatienceCounter, "stats untouched by content updates")

	err := c.UpdateFactor("Persona", "x")
	var unknown *UnknownFactorError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Persona", unknown.Name)
	assert.Equal(t, 3, c.Len())
}

func TestUpdateStats_Unknown(t *testing.T) {
	c := newMath()
	err := c.UpdateStats("nope", func(*FactorStats) { t.Fatal("must not run") })
	var unknown *UnknownFactorError
	assert.ErrorAs(t, err, &unknown)
}

func TestRender_Default(t *testing.T) {
	want := "--- INSTRUCTION ---\nSolve the problem.\n\n" +
		"--- INPUT ---\n{input}\n\n" +
		"--- RATIONALE ---\nThink step by step."
	assert.Equal(t, want, newMath().Render())
}

func TestRender_ExplicitOrderSkipsUnknown(t *testing.T) {
	c := newMath()
	got := c.Render("Rationale", "Missing", "Instruction")
	want := "--- RATIONALE ---\nThink step by step.\n\n--- INSTRUCTION ---\nSolve the problem."
	assert.Equal(t, want, got)
}

func TestRender_PureFunctionOfFactorsAndOrder(t *testing.T) {
	a, b := newMath(), newMath()
	require.NoError(t, b.UpdateStats("Input", func(s *FactorStats) { s.Selections = 9 }))

	order := []string{"Input", "Instruction"}
	assert.Equal(t, a.Render(order...), b.Render(order...))
	assert.Equal(t, a.Render(), a.Render(a.FactorNames()...))
}

func TestRender_TrimsSurroundingWhitespace(t *testing.T) {
	c := New("t")
	c.AddFactor("a", "x\n\n  ")
	assert.Equal(t, "--- A ---\nx", c.Render())
	assert.Equal(t, "", New("empty").Render())
	assert.Equal(t, "", c.Render("Missing"))

	c.AddFactor("b", "  \n")
	got := c.Render("b", "a")
	assert.Equal(t, strings.TrimSpace(got), got)
	assert.Equal(t, "--- B ---\n  \n\n--- A ---\nx", got)
}

func TestFactorNames_ReturnsCopy(t *testing.T) {
	c := newMath()
	names := c.FactorNames()
	names[0] = "mutated"
	assert.Equal(t, "Instruction", c.FactorNames()[0])
}

func TestClone_Independent(t *testing.T) {
	c := newMath()
	clone := c.Clone()
	require.NoError(t, clone.UpdateFactor("Instruction", "changed"))
	require.NoError(t, clone.UpdateStats("Instruction", func(s *FactorStats) { s.Frozen = true }))
	clone.AddFactor("Persona", "You are a tutor.")

	content, _ := c.Content("Instruction")
	assert.Equal(t, "Solve the problem.", content)
	st, _ := c.Stats("Instruction")
	assert.False(t, st.Frozen)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, c.TaskDescription(), clone.TaskDescription())
}

func TestWithFactor(t *testing.T) {
	c := newMath()
	shadow, err := c.WithFactor("Rationale", "Show your work.")
	require.NoError(t, err)
	assert.Contains(t, shadow.Render(), "Show your work.")
	assert.NotContains(t, c.Render(), "Show your work.")

	_, err = c.WithFactor("nope", "x")
	assert.Error(t, err)
}

func TestFactorStats_MeanScore(t *testing.T) {
	assert.Equal(t, 0.0, NewFactorStats().MeanScore())
	st := FactorStats{Selections: 4, CumulativeScore: 2}
	assert.Equal(t, 0.5, st.MeanScore())
}

func TestManifest_RoundTrip(t *testing.T) {
	c := newMath()
	require.NoError(t, c.UpdateStats("Input", func(s *FactorStats) {
		s.Selections = 2
		s.BestScoreEver = 0.7
	}))

	m := c.Manifest()
	m.SetLabel("dataset", "gsm8k")
	require.NoError(t, m.Validate())
	assert.Equal(t, c.Render(), m.Rendered)
	assert.Len(t, m.SHA256, 64)

	data, err := m.ToJSON()
	require.NoError(t, err)
	back, err := FromJSON(data)
	require.NoError(t, err)
	if diff := cmp.Diff(m, back); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	rebuilt := back.Composite()
	assert.Equal(t, c.Render(), rebuilt.Render())
	st, _ := rebuilt.Stats("Input")
	assert.Equal(t, 0.7, st.BestScoreEver)
}

func TestManifest_ValidateErrors(t *testing.T) {
	assert.Error(t, (&Manifest{}).Validate())

	m := newMath().Manifest()
	m.Rendered += "tampered"
	assert.Error(t, m.Validate())

	m = newMath().Manifest()
	m.Factors = append(m.Factors, m.Factors[0])
	assert.Error(t, m.Validate())
}
