package shared

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Agent names understood by the planner and the executor.
const (
	AgentWebSearch      = "WebSearch"
	AgentMarketData     = "MarketData"
	AgentDocumentSearch = "DocumentSearch"
	AgentSynthesis      = "Synthesis"
)

// TaskListSchema is the shape the oracle is asked to emit.
var TaskListSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"task_list": {
			Type:        jsonschema.Array,
			Description: "Ordered research tasks. The last task must use the Synthesis agent.",
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"task_name": {
						Type:        jsonschema.String,
						Description: "Unique name of the task.",
					},
					"agent_name": {
						Type:        jsonschema.String,
						Description: "Specialist that runs the task.",
						Enum:        []string{AgentWebSearch, AgentMarketData, AgentDocumentSearch, AgentSynthesis},
					},
					"agent_task": {
						Type:        jsonschema.String,
						Description: "One line summary of the goal.",
					},
					"instructions": {
						Type:        jsonschema.String,
						Description: "Directive passed verbatim to the specialist.",
					},
					"expected_output": {
						Type:        jsonschema.String,
						Description: "Shape of the desired result.",
					},
					"required_context": {
						Type:        jsonschema.Array,
						Description: "Names of earlier tasks whose results this task needs.",
						Items:       &jsonschema.Definition{Type: jsonschema.String},
					},
				},
				Required: []string{"task_name", "agent_name", "instructions"},
			},
		},
	},
	Required: []string{"task_list"},
}

// SchemaHint renders TaskListSchema for embedding in a prompt.
func SchemaHint() string {
	data, err := json.MarshalIndent(&TaskListSchema, "", "  ")
	if err != nil {
		return `{"task_list": [{"task_name": string, "agent_name": string, "agent_task": string, "instructions": string, "expected_output": string, "required_context": [string]}]}`
	}
	return string(data)
}
