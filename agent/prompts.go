package agent

import (
	"fmt"
	"strings"

	"research-agent/service"
	"research-agent/shared"
)

var plannerInstruct = `
You are a **Research Plan Generator** for a financial research assistant.
Given the 'User Query', produce a step-by-step task list that specialists can follow to deliver a complete answer.

### AGENTS
- WebSearch: news, filings and general web research.
- MarketData: quotes, historical prices, financial statements and ratios for tickers.
- DocumentSearch: passages from documents the user uploaded.
- Synthesis: writes the final answer from the results of earlier tasks.

### RULES
1. Put the information gathering tasks first and end with ONLY ONE Synthesis task.
2. Prefer the smallest plan that answers the query. A single price question needs one MarketData task and the Synthesis task.
3. Every task names the earlier tasks it needs in 'required_context'. Never reference a later task.
4. Never invent figures in the instructions. If data may be unavailable, ask the specialist to say so.
5. If the 'Previous Context' already answers part of the query, only plan tasks for what is new.

IMPORTANT: output ONLY the JSON document, no prose and no markdown fences.
`

var repromptInstruct = `
You convert research plans into strict JSON. You never add commentary.
`

var specialistInstruct = map[string]string{
	shared.AgentWebSearch: `
You are a **Web Search Agent**. Research the 'Current Task' using the available tools and report what you found with the source of each fact.
If the tools return nothing relevant, say that plainly. Never fabricate figures.
`,
	shared.AgentMarketData: `
You are a **Finance Data Agent**. Use the available tools to fetch quotes, price history and financial statements needed by the 'Current Task'.
Report numbers exactly as returned by the tools, with their date and currency. If a tool fails, report the failure instead of estimating.
`,
	shared.AgentDocumentSearch: `
You are a **Document Agent**. Answer the 'Current Task' from the user's documents only, quoting the passages you rely on.
If the documents do not cover the task, say so.
`,
	shared.AgentSynthesis: `
You are the **Response Generator**. Combine the 'Previous Results' into one coherent answer to the 'Current Task'.
Some previous results may be failure notes. Tell the user which research steps did not complete and never fill those gaps with invented data.
`,
}

var defaultSpecialistInstruct = `
You are a research specialist. Complete the 'Current Task' using the available tools and the 'Previous Results'. Never fabricate data.
`

// SpecialistInstruct returns the built-in system prompt for agent.
func SpecialistInstruct(agent string) string {
	for name, instruct := range specialistInstruct {
		if strings.EqualFold(name, agent) {
			return instruct
		}
	}
	return defaultSpecialistInstruct
}

func plannerInput(query string, priorContext string) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("** USER QUERY **: %s\n\n", query))
	if strings.TrimSpace(priorContext) != "" {
		builder.WriteString("### PREVIOUS CONTEXT\n")
		builder.WriteString(priorContext)
		builder.WriteString("\n\n")
	}
	builder.WriteString("### OUTPUT SCHEMA\n")
	builder.WriteString(shared.SchemaHint())
	builder.WriteByte('\n')
	return builder.String()
}

func specialistInput(req service.SpecialistRequest) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("### CURRENT TASK: %s\n", req.TaskName))
	if req.Objective != "" {
		builder.WriteString(fmt.Sprintf("Objective: %s\n", req.Objective))
	}
	builder.WriteString(fmt.Sprintf("Instructions:\n%s\n", req.Instructions))
	if req.ExpectedOutput != "" {
		builder.WriteString(fmt.Sprintf("Expected Output:\n%s\n", req.ExpectedOutput))
	}
	builder.WriteByte('\n')
	if req.Context != "" {
		builder.WriteString("### PREVIOUS RESULTS\n")
		builder.WriteString(req.Context)
	} else {
		builder.WriteString("NO PREVIOUS RESULTS\n")
	}
	return builder.String()
}
