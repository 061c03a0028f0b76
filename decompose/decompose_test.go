package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/llm/mock"
)

func TestParseFactors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []Factor
	}{
		{
			name:     "two blocks",
			response: "[A]\nfoo\n\n[B]\nbar",
			want:     []Factor{{Name: "A", Content: "foo"}, {Name: "B", Content: "bar"}},
		},
		{
			name:     "preamble ignored",
			response: "Sure, here are the factors:\n\n[Instruction]\nDo it.\n[Input]\n{input}\n",
			want:     []Factor{{Name: "Instruction", Content: "Do it."}, {Name: "Input", Content: "{input}"}},
		},
		{
			name:     "crlf and multi-line content",
			response: "[Rationale]\r\nline one\r\nline two\r\n\r\n[Output_Format]\r\nJSON",
			want: []Factor{
				{Name: "Rationale", Content: "line one\nline two"},
				{Name: "Output_Format", Content: "JSON"},
			},
		},
		{
			name:     "duplicate keeps first",
			response: "[A]\nfirst\n[A]\nsecond\n[B]\nb",
			want:     []Factor{{Name: "A", Content: "first"}, {Name: "B", Content: "b"}},
		},
		{
			name:     "inline brackets are content",
			response: "[Examples]\nUse [x] as a marker.\n  [ Persona ]  \nA teacher.",
			want: []Factor{
				{Name: "Examples", Content: "Use [x] as a marker."},
				{Name: "Persona", Content: "A teacher."},
			},
		},
		{
			name:     "empty block",
			response: "[A]\n[B]\nb",
			want:     []Factor{{Name: "A", Content: ""}, {Name: "B", Content: "b"}},
		},
		{name: "no headers", response: "just some prose", want: nil},
		{name: "empty", response: "", want: nil},
		{name: "empty brackets", response: "[]\nnothing", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFactors(tt.response)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFactors() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiscoverStructure(t *testing.T) {
	gen := mock.NewGenerator("[Instruction]\nSolve it.\n\n[Input]\nQuestion: {input}\n\n[Rationale]\nShow work.")
	d := New(gen)

	c, err := d.DiscoverStructure(context.Background(), "grade-school math", `{"question": "1+1"}`)
	require.NoError(t, err)

	assert.Equal(t, "grade-school math", c.TaskDescription())
	assert.Equal(t, []string{"Instruction", "Input", "Rationale"}, c.FactorNames())
	content, ok := c.Content("Input")
	require.True(t, ok)
	assert.Equal(t, "Question: {input}", content)

	for _, name := range c.FactorNames() {
		s, ok := c.Stats(name)
		require.True(t, ok)
		assert.Equal(t, 0, s.Selections)
		assert.Equal(t, -1.0, s.BestScoreEver)
		assert.False(t, s.Frozen)
	}

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "grade-school math")
	assert.Contains(t, prompts[0], "--- EXAMPLE ---\n{\"question\": \"1+1\"}\n--- END EXAMPLE ---")
	assert.Contains(t, prompts[0], "[FACTOR_NAME_1]")
}

func TestDiscoverStructureFallback(t *testing.T) {
	for _, response := range []string{"", "I cannot help with that.", "   \n\n"} {
		d := New(mock.NewGenerator(response))
		c, err := d.DiscoverStructure(context.Background(), "summarize news", "text")
		require.NoError(t, err)

		assert.Equal(t, []string{"Instruction", "Input", "Rationale"}, c.FactorNames())
		got, _ := c.Content("Instruction")
		assert.Equal(t, "Solve the following task: summarize news", got)
		got, _ = c.Content("Input")
		assert.Equal(t, InputPlaceholder, got)
	}
}

func TestDiscoverStructureInputSlot(t *testing.T) {
	t.Run("appended when missing", func(t *testing.T) {
		d := New(mock.NewGenerator("[Instruction]\nSolve.\n[Rationale]\nThink."))
		c, err := d.DiscoverStructure(context.Background(), "task", "ex")
		require.NoError(t, err)
		assert.Equal(t, []string{"Instruction", "Rationale", "Input"}, c.FactorNames())
	})

	t.Run("disabled", func(t *testing.T) {
		d := New(mock.NewGenerator("[Instruction]\nSolve.\n[Rationale]\nThink."), WithInputSlot(false))
		c, err := d.DiscoverStructure(context.Background(), "task", "ex")
		require.NoError(t, err)
		assert.Equal(t, []string{"Instruction", "Rationale"}, c.FactorNames())
	})

	t.Run("placeholder added to existing Input factor", func(t *testing.T) {
		d := New(mock.NewGenerator("[Instruction]\nSolve it.\n\n[Input]\nThe math problem will be given here."))
		c, err := d.DiscoverStructure(context.Background(), "task", "ex")
		require.NoError(t, err)
		assert.Equal(t, []string{"Instruction", "Input"}, c.FactorNames())
		content, _ := c.Content("Input")
		assert.Equal(t, "The math problem will be given here.\n{input}", content)
		assert.Contains(t, c.Render(), "{input}")
	})

	t.Run("empty Input factor gets the placeholder", func(t *testing.T) {
		d := New(mock.NewGenerator("[Instruction]\nSolve it.\n[Input]\n"))
		c, err := d.DiscoverStructure(context.Background(), "task", "ex")
		require.NoError(t, err)
		content, _ := c.Content("Input")
		assert.Equal(t, "{input}", content)
	})

	t.Run("not duplicated", func(t *testing.T) {
		d := New(mock.NewGenerator("[Task]\nAnswer {input} briefly."))
		c, err := d.DiscoverStructure(context.Background(), "task", "ex")
		require.NoError(t, err)
		assert.Equal(t, []string{"Task"}, c.FactorNames())
	})
}

func TestDiscoverStructureGenerationError(t *testing.T) {
	gen := mock.NewGenerator()
	cause := core.NewGenerationError("architect", "gpt-4o", 503, errors.New("unavailable"))
	gen.FailNext(cause)

	c, err := New(gen).DiscoverStructure(context.Background(), "task", "ex")
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, core.IsGenerationError(err))
	assert.Equal(t, cause, err)
}

func TestMetaPromptSuggestions(t *testing.T) {
	d := New(mock.NewGenerator(), WithSuggestedFactors("Persona", "Constraints"))
	p := d.MetaPrompt("classify", "x")
	assert.Contains(t, p, "Common factors include, but are not limited to: 'Persona', 'Constraints'.")
	assert.Contains(t, p, `Task Description: "classify"`)
}
