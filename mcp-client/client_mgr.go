package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/shell"

	"research-agent/service"
	"research-agent/shared"
)

type ClientMgr struct {
	mu        sync.RWMutex
	clientMap map[string]*client.Client
}

func NewClientMgr() *ClientMgr {
	return &ClientMgr{
		clientMap: map[string]*client.Client{},
	}
}

func (mgr *ClientMgr) CloseByName(name string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	client, exist := mgr.clientMap[name]
	if !exist {
		return fmt.Errorf("client %s not exist", name)
	}
	err := client.Close()
	if err != nil {
		return err
	}
	delete(mgr.clientMap, name)
	return nil
}

func (mgr *ClientMgr) Close() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	var errList []error = nil
	for name, client := range mgr.clientMap {
		err := client.Close()
		if err != nil {
			errList = append(errList, err)
		}
		delete(mgr.clientMap, name)
	}
	return errors.Join(errList...)
}

// NewMCPClient starts a stdio MCP server from a shell-style command line and
// registers it under name.
func (mgr *ClientMgr) NewMCPClient(ctx context.Context, name string, commandLine string, env []string) error {
	fields, err := shell.Fields(commandLine, os.Getenv)
	if err != nil {
		return fmt.Errorf("parse command of mcp server %s: %w", name, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("mcp server %s has an empty command", name)
	}
	c, err := client.NewStdioMCPClient(fields[0], env, fields[1:]...)
	if err != nil {
		return err
	}
	if err := mgr.AddClient(ctx, name, c); err != nil {
		c.Close()
		return err
	}
	log.Info().Str("server", name).Str("command", fields[0]).Msg("create mcp client success")
	return nil
}

// AddClient initializes a started client and registers it. An empty name
// takes the server's reported name.
func (mgr *ClientMgr) AddClient(ctx context.Context, name string, c *client.Client) error {
	res, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "research-agent",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return err
	}
	if name == "" {
		name = res.ServerInfo.Name
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	_, exist := mgr.clientMap[name]
	if exist {
		return fmt.Errorf("mcp server %s already exist", name)
	}
	mgr.clientMap[name] = c
	return nil
}

func (mgr *ClientMgr) Names() []string {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	names := make([]string, 0, len(mgr.clientMap))
	for name := range mgr.clientMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (mgr *ClientMgr) LoadAllTools(ctx context.Context) ([]service.ToolEndPoint, error) {
	var endpoint []service.ToolEndPoint
	var errorList []error
	for _, name := range mgr.Names() {
		res, err := mgr.loadTools(ctx, name)
		if err != nil {
			errorList = append(errorList, err)
		} else {
			endpoint = append(endpoint, res...)
		}
	}
	err := errors.Join(errorList...)
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (mgr *ClientMgr) loadTools(ctx context.Context, server string) ([]service.ToolEndPoint, error) {
	c, err := mgr.get(server)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools of %s: %w", server, err)
	}
	endpointList := []service.ToolEndPoint{}
	for _, tool := range res.Tools {
		toolName := tool.Name
		endpoint := service.ToolEndPoint{
			Name: toolName,
			Def:  shared.ConvertToFunctionDefinition(tool),
			Handler: func(ctx context.Context, args string) (string, error) {
				return mgr.CallTool(ctx, server, toolName, json.RawMessage(args))
			},
		}
		endpointList = append(endpointList, endpoint)
	}
	return endpointList, nil
}

func (mgr *ClientMgr) get(server string) (*client.Client, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	c, exist := mgr.clientMap[server]
	if !exist {
		return nil, fmt.Errorf("client %s not exist", server)
	}
	return c, nil
}

// CallTool calls tool on server and joins the text content of the result.
func (mgr *ClientMgr) CallTool(ctx context.Context, server string, tool string, args any) (string, error) {
	c, err := mgr.get(server)
	if err != nil {
		return "", err
	}
	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, content := range res.Content {
		text, ok := content.(mcp.TextContent)
		if ok {
			builder.WriteString(text.Text)
			builder.WriteByte('\n')
		}
	}
	if res.IsError {
		return "", fmt.Errorf("tool %s on %s failed: %s", tool, server, strings.TrimSpace(builder.String()))
	}
	return builder.String(), nil
}
