package shared

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// ConvertToMcpTool turns an OpenAI function definition into an MCP tool with the same schema.
func ConvertToMcpTool(def openai.FunctionDefinition) (mcp.Tool, error) {
	params := def.Parameters
	if d, ok := params.(jsonschema.Definition); ok {
		params = &d
	}
	data, err := json.Marshal(params)
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(def.Name, def.Description, data), nil
}

// ConvertToFunctionDefinition turns an MCP tool into a function definition for chat completions.
func ConvertToFunctionDefinition(tool mcp.Tool) openai.FunctionDefinition {
	schema := tool.RawInputSchema
	if len(schema) == 0 {
		data, err := json.Marshal(tool.InputSchema)
		if err != nil || string(data) == "null" {
			data = []byte(`{"type":"object","properties":{}}`)
		}
		schema = data
	}
	return openai.FunctionDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  json.RawMessage(schema),
	}
}
