package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic(t *testing.T) {
	ctx := context.Background()

	t.Run("numbered key value blocks", func(t *testing.T) {
		text := "1. task_name: Fetch price\n   agent: MarketData\n   instructions: Get AAPL quote\n\n2. task_name: Answer\n   agent: Synthesis\n   instructions: uses task 1"
		tasks, err := Heuristic{}.Recover(ctx, text)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "Fetch price", tasks[0].Name)
		assert.Equal(t, "MarketData", tasks[0].Agent)
		assert.Equal(t, "Get AAPL quote", tasks[0].Instructions)
		assert.Equal(t, "Get AAPL quote", tasks[0].Objective)
		assert.Equal(t, "Answer", tasks[1].Name)
		assert.Equal(t, "uses task 1", tasks[1].Instructions)
		assert.Empty(t, tasks[1].RequiredContext)
	})

	t.Run("markdown emphasis and explicit context", func(t *testing.T) {
		text := "**1.** **Task Name:** news\n**Agent Name:** WebSearch\n**Instructions:** Find AAPL news\n" +
			"**2.** **Task Name:** summary\n**Agent Name:** Synthesis\n**Required Context:** news, missing"
		tasks, err := Heuristic{}.Recover(ctx, text)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "news", tasks[0].Name)
		assert.Equal(t, "WebSearch", tasks[0].Agent)
		assert.Equal(t, "Find AAPL news", tasks[0].Instructions)
		assert.Equal(t, []string{"news", "missing"}, tasks[1].RequiredContext)
	})

	t.Run("key words inside a value stay in the value", func(t *testing.T) {
		text := "1. task_name: quote\n   agent: MarketData\n   instructions: Ask the data agent: what is the AAPL\n   price today; expected_output: one number\n" +
			"2. Task Name: answer | Agent: Synthesis"
		tasks, err := Heuristic{}.Recover(ctx, text)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "MarketData", tasks[0].Agent)
		assert.Equal(t, "Ask the data agent: what is the AAPL price today", tasks[0].Instructions)
		assert.Equal(t, "one number", tasks[0].ExpectedOutput)
		assert.Equal(t, "answer", tasks[1].Name)
		assert.Equal(t, "Synthesis", tasks[1].Agent)
	})

	t.Run("block without keys is kept as free text", func(t *testing.T) {
		tasks, err := Heuristic{}.Recover(ctx, "1. look up the stock price\n2) summarize it")
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "look up the stock price", tasks[0].Instructions)
		assert.Equal(t, "summarize it", tasks[1].Instructions)
		assert.Equal(t, []string{}, tasks[1].RequiredContext)
	})

	t.Run("blank text has no blocks", func(t *testing.T) {
		_, err := Heuristic{}.Recover(ctx, "\n \n")
		require.ErrorIs(t, err, ErrNoTaskList)
	})
}

func TestInferMissingDependencies(t *testing.T) {
	t.Run("references to earlier tasks", func(t *testing.T) {
		tasks := []Task{
			{Name: "a"},
			{Name: "b"},
			{Name: "c", Instructions: "Combine task 1 and Task #2, ignore task 3 and task 9", Objective: "see task two"},
		}
		InferMissingDependencies(tasks)
		assert.Equal(t, []string{"a", "b"}, tasks[2].RequiredContext)
		assert.Empty(t, tasks[0].RequiredContext)
	})

	t.Run("declared context is left alone", func(t *testing.T) {
		tasks := []Task{
			{Name: "a"},
			{Name: "b"},
			{Name: "c", Instructions: "use task 1", RequiredContext: []string{"b"}},
		}
		InferMissingDependencies(tasks)
		assert.Equal(t, []string{"b"}, tasks[2].RequiredContext)
	})

	t.Run("self and forward references are ignored", func(t *testing.T) {
		tasks := []Task{
			{Name: "a", Instructions: "this is task 1, then task 2 runs"},
			{Name: "b"},
		}
		InferMissingDependencies(tasks)
		assert.Empty(t, tasks[0].RequiredContext)
	})

	t.Run("positions", func(t *testing.T) {
		assert.Equal(t, []int{1, 12, 3}, referencedPositions("task 1, task_12 and task number three"))
		assert.Empty(t, referencedPositions("tasks and multitasking"))
	})
}
