package mcpclient

import (
	"context"

	"research-agent/service"
)

// ToolSpecialist runs a task by calling one MCP tool with the task fields
// as arguments.
type ToolSpecialist struct {
	mgr    *ClientMgr
	server string
	tool   string
}

func NewToolSpecialist(mgr *ClientMgr, server string, tool string) *ToolSpecialist {
	return &ToolSpecialist{mgr: mgr, server: server, tool: tool}
}

func (s *ToolSpecialist) Run(ctx context.Context, req service.SpecialistRequest) (string, error) {
	args := map[string]any{
		"task_name":       req.TaskName,
		"objective":       req.Objective,
		"instructions":    req.Instructions,
		"expected_output": req.ExpectedOutput,
		"context":         req.Context,
	}
	return s.mgr.CallTool(ctx, s.server, s.tool, args)
}
