package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T, channel OracleChannel, opts ...CompilerOption) (*Compiler, *SpecialistDispatcher) {
	t.Helper()
	sd := newTestDispatcher(t, map[string]SpecialistFunc{
		"WebSearch":      echoSpecialist("news"),
		"MarketData":     echoSpecialist("AAPL 190.12"),
		"DocumentSearch": echoSpecialist("10-K excerpt"),
		"Synthesis": func(ctx context.Context, req SpecialistRequest) (string, error) {
			return "final: " + req.Context, nil
		},
	})
	c, err := NewCompiler(channel, sd, opts...)
	require.NoError(t, err)
	return c, sd
}

func TestNewCompiler(t *testing.T) {
	t.Run("requires a synthesis specialist", func(t *testing.T) {
		_, err := NewCompiler(OracleChannel{}, nil)
		require.ErrorIs(t, err, ErrNoSynthesisSpecialist)

		sd := newTestDispatcher(t, map[string]SpecialistFunc{"WebSearch": echoSpecialist("x")})
		_, err = NewCompiler(OracleChannel{}, sd)
		require.ErrorIs(t, err, ErrNoSynthesisSpecialist)
	})
}

func TestCompiler_Compile(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCompiler(t, OracleChannel{})

	t.Run("numbered text goes through the heuristic tier", func(t *testing.T) {
		text := "1. task_name: Fetch price\n   agent: MarketData\n   instructions: Get AAPL quote\n\n2. task_name: Answer\n   agent: Synthesis\n   instructions: uses task 1"
		g, tier, err := c.Compile(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, "heuristic", tier)
		require.Equal(t, 2, g.Len())
		answer, ok := g.Task("Answer")
		require.True(t, ok)
		assert.Equal(t, []string{"Fetch price"}, answer.RequiredContext)
		assert.Equal(t, "Synthesis", g.Terminal().Agent)
	})

	t.Run("heuristic context written as a task reference", func(t *testing.T) {
		text := "1. task_name: Fetch price\n   agent: MarketData\n   instructions: Get AAPL quote\n\n" +
			"2. task_name: Compare\n   agent: WebSearch\n   required_context: task 1\n   instructions: Compare with peers\n\n" +
			"3. task_name: Answer\n   agent: Synthesis\n   required_context: task 2"
		g, tier, err := c.Compile(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, "heuristic", tier)
		compare, ok := g.Task("Compare")
		require.True(t, ok)
		assert.Equal(t, []string{"Fetch price"}, compare.RequiredContext)
		assert.Equal(t, []string{"Compare"}, g.Terminal().RequiredContext)
	})

	t.Run("every text tier yields the same graph", func(t *testing.T) {
		clean, tier, err := c.Compile(ctx, cleanProposal)
		require.NoError(t, err)
		assert.Equal(t, "direct_decode", tier)

		fenced, tier, err := c.Compile(ctx, "Plan:\n```json\n"+cleanProposal+"\n```")
		require.NoError(t, err)
		assert.Equal(t, "fenced_block", tier)
		assert.Equal(t, clean.Tasks(), fenced.Tasks())

		prose, tier, err := c.Compile(ctx, "Here you go: "+cleanProposal+" Cheers.")
		require.NoError(t, err)
		assert.Equal(t, "brace_scan", tier)
		assert.Equal(t, clean.Tasks(), prose.Tasks())
	})

	t.Run("structured input skips recovery", func(t *testing.T) {
		g, tier, err := c.Compile(ctx, []Task{{Name: "news", Agent: "WebSearch"}})
		require.NoError(t, err)
		assert.Equal(t, TierStructured, tier)
		assert.Equal(t, 2, g.Len())
	})

	t.Run("empty input is malformed", func(t *testing.T) {
		_, _, err := c.Compile(ctx, "   ")
		require.ErrorIs(t, err, ErrMalformedProposal)
		require.ErrorIs(t, err, ErrNoTaskList)
	})

	t.Run("validator options apply", func(t *testing.T) {
		strict, _ := newTestCompiler(t, OracleChannel{}, WithValidatorOptions(WithStrictDependencies(true)))
		_, tier, err := strict.Compile(ctx, []Task{
			{Name: "a", Agent: "WebSearch", RequiredContext: []string{"b"}},
			{Name: "b", Agent: "Synthesis"},
		})
		require.ErrorIs(t, err, ErrInvalidDependency)
		assert.Equal(t, TierStructured, tier)
	})

	t.Run("custom strategies replace the cascade", func(t *testing.T) {
		direct, _ := newTestCompiler(t, OracleChannel{}, WithStrategies(DirectDecode{}))
		_, _, err := direct.Compile(ctx, "Plan:\n```json\n"+cleanProposal+"\n```")
		require.ErrorIs(t, err, ErrMalformedProposal)
	})
}

func TestCompiler_CompileAndRun(t *testing.T) {
	ctx := context.Background()

	t.Run("report carries the tier", func(t *testing.T) {
		c, _ := newTestCompiler(t, OracleChannel{})
		report, err := c.CompileAndRun(ctx, cleanProposal)
		require.NoError(t, err)
		assert.Equal(t, "direct_decode", report.Tier)
		assert.True(t, report.Success)
		assert.Contains(t, report.Answer, "AAPL 190.12")
	})

	t.Run("gibberish with both channels down produces no report", func(t *testing.T) {
		channel := OracleChannel{
			Primary:   &fakeOracle{name: "primary", err: errors.New("connection reset")},
			Secondary: &fakeOracle{name: "secondary", err: errors.New("rate limited")},
		}
		c, sd := newTestCompiler(t, channel)
		report, err := c.CompileAndRun(ctx, "qwe rty uio ???")
		require.ErrorIs(t, err, ErrMalformedProposal)
		assert.Nil(t, report)
		assert.Empty(t, sd.ExecLog())
	})
}

func TestCompiler_EmptyTaskList(t *testing.T) {
	ctx := context.Background()
	inputs := map[string]any{
		"task_list map":       map[string]any{"task_list": []any{}},
		"bare list":           []any{},
		"task_list text":      `{"task_list": []}`,
		"bare list text":      "[]",
		"fenced empty list":   "Plan:\n```json\n{\"task_list\": []}\n```",
		"empty list in prose": `Nothing to do: {"task_list": []} sorry.`,
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			oracle := &fakeOracle{name: "primary", reprompts: []any{cleanProposal}}
			c, sd := newTestCompiler(t, OracleChannel{Primary: oracle})
			report, err := c.CompileAndRun(ctx, raw)
			require.ErrorIs(t, err, ErrMalformedProposal)
			assert.Nil(t, report)
			assert.Empty(t, sd.ExecLog())
			assert.Zero(t, oracle.calls)
		})
	}
}

func TestCompiler_Research(t *testing.T) {
	ctx := context.Background()

	t.Run("plans and runs", func(t *testing.T) {
		oracle := &fakeOracle{name: "primary", proposal: cleanProposal}
		c, sd := newTestCompiler(t, OracleChannel{Primary: oracle})
		report, err := c.Research(ctx, "How is AAPL doing?", "")
		require.NoError(t, err)
		assert.True(t, report.Success)
		assert.Equal(t, []string{"price", "answer"}, report.Order)
		assert.Len(t, sd.ExecLog(), 2)
	})

	t.Run("secondary plans when primary is down", func(t *testing.T) {
		primary := &fakeOracle{name: "primary", err: errors.New("down")}
		secondary := &fakeOracle{name: "secondary", proposal: []Task{{Name: "news", Agent: "WebSearch"}}}
		c, _ := newTestCompiler(t, OracleChannel{Primary: primary, Secondary: secondary})
		report, err := c.Research(ctx, "AAPL news", "")
		require.NoError(t, err)
		assert.Equal(t, TierStructured, report.Tier)
	})

	t.Run("no oracle reachable", func(t *testing.T) {
		oracle := &fakeOracle{name: "primary", err: errors.New("down")}
		c, _ := newTestCompiler(t, OracleChannel{Primary: oracle})
		report, err := c.Research(ctx, "AAPL news", "")
		require.ErrorIs(t, err, ErrOracleUnavailable)
		assert.Nil(t, report)
	})
}
