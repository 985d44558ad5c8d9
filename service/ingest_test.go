package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest(t *testing.T) {
	t.Run("nil and blank input are empty", func(t *testing.T) {
		assert.Equal(t, ShapeEmpty, Ingest(nil).Kind)
		assert.Equal(t, ShapeEmpty, Ingest("  \n\t").Kind)
		assert.Equal(t, ShapeEmpty, Ingest([]Task{}).Kind)
		assert.Equal(t, ShapeEmpty, Ingest((*Task)(nil)).Kind)
	})

	t.Run("declared empty task lists are empty", func(t *testing.T) {
		assert.Equal(t, ShapeEmpty, Ingest([]any{}).Kind)
		assert.Equal(t, ShapeEmpty, Ingest([]map[string]any{}).Kind)
		assert.Equal(t, ShapeEmpty, Ingest(map[string]any{}).Kind)
		assert.Equal(t, ShapeEmpty, Ingest(map[string]any{"task_list": []any{}}).Kind)
		assert.Equal(t, ShapeEmpty, Ingest(map[string]any{"Tasks": []map[string]any{}}).Kind)
	})

	t.Run("text is passed through unparsed", func(t *testing.T) {
		shape := Ingest("1. look up the price")
		require.Equal(t, ShapeText, shape.Kind)
		assert.Equal(t, "1. look up the price", shape.Text)
		assert.Nil(t, shape.Tasks)

		shape = Ingest(json.RawMessage(`{"task_list": []}`))
		require.Equal(t, ShapeText, shape.Kind)
		assert.Equal(t, `{"task_list": []}`, shape.Text)
	})

	t.Run("task slice is copied", func(t *testing.T) {
		raw := []Task{{Name: "price", Agent: "MarketData", RequiredContext: []string{"x"}}}
		shape := Ingest(raw)
		require.Equal(t, ShapeStructured, shape.Kind)
		shape.Tasks[0].Name = "changed"
		shape.Tasks[0].RequiredContext[0] = "changed"
		assert.Equal(t, "price", raw[0].Name)
		assert.Equal(t, "x", raw[0].RequiredContext[0])
	})

	t.Run("decoded task_list document is structured", func(t *testing.T) {
		raw := map[string]any{
			"task_list": []any{
				map[string]any{"task_name": "price", "agent_name": "MarketData", "instructions": "Get AAPL quote"},
				map[string]any{"Task Name": "answer", "Agent": "Synthesis", "depends_on": "price"},
			},
		}
		shape := Ingest(raw)
		require.Equal(t, ShapeStructured, shape.Kind)
		require.Len(t, shape.Tasks, 2)
		assert.Equal(t, "MarketData", shape.Tasks[0].Agent)
		assert.Equal(t, "answer", shape.Tasks[1].Name)
		assert.Equal(t, []string{"price"}, shape.Tasks[1].RequiredContext)
	})

	t.Run("map of task records keeps natural key order", func(t *testing.T) {
		raw := map[string]any{
			"task_10": map[string]any{"agent": "Synthesis"},
			"task_2":  map[string]any{"agent": "WebSearch"},
			"task_1":  map[string]any{"agent": "MarketData"},
		}
		shape := Ingest(raw)
		require.Equal(t, ShapeStructured, shape.Kind)
		assert.Equal(t, []string{"task_1", "task_2", "task_10"}, taskNames(shape.Tasks))
	})

	t.Run("unrecognised value falls back to text", func(t *testing.T) {
		shape := Ingest(map[string]any{"foo": 1})
		require.Equal(t, ShapeText, shape.Kind)
		assert.JSONEq(t, `{"foo": 1}`, shape.Text)
	})

	t.Run("kind names", func(t *testing.T) {
		assert.Equal(t, "empty", ShapeEmpty.String())
		assert.Equal(t, "structured", ShapeStructured.String())
		assert.Equal(t, "text", ShapeText.String())
	})
}
