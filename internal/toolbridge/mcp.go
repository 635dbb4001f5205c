package toolbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerCommand describes one MCP server to launch as a subprocess.
type ServerCommand struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// MCPBridge exposes the tools of one or more MCP servers as a Bridge.
// Tool discovery happens once at connect time; the tool list is stable
// for the bridge's lifetime.
type MCPBridge struct {
	sessions map[string]*mcpsdk.ClientSession // tool name -> owning session
	procs    []*exec.Cmd
	specs    []Spec
}

// ConnectMCP starts every configured server, discovers its tools, and
// returns a bridge routing each tool name to the session that owns it.
// When two servers export the same tool name, the first one wins.
func ConnectMCP(ctx context.Context, servers []ServerCommand) (*MCPBridge, error) {
	bridge := &MCPBridge{sessions: map[string]*mcpsdk.ClientSession{}}

	for _, server := range servers {
		cmd := exec.Command(server.Command, server.Args...)
		cmd.Stderr = os.Stderr
		client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "go-a2a", Version: "1.0.0"}, nil)
		session, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
		if err != nil {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			bridge.Close()
			return nil, fmt.Errorf("connect to MCP server %q: %w", server.Name, err)
		}
		bridge.procs = append(bridge.procs, cmd)

		params := &mcpsdk.ListToolsParams{}
		for {
			list, err := session.ListTools(ctx, params)
			if err != nil {
				bridge.Close()
				return nil, fmt.Errorf("list tools from MCP server %q: %w", server.Name, err)
			}
			for _, tool := range list.Tools {
				if _, taken := bridge.sessions[tool.Name]; taken {
					slog.Warn("duplicate MCP tool name, keeping first", "tool", tool.Name, "server", server.Name)
					continue
				}
				bridge.sessions[tool.Name] = session
				bridge.specs = append(bridge.specs, Spec{
					Name:        tool.Name,
					Description: tool.Description,
					Params:      paramsFromSchema(tool.InputSchema),
				})
			}
			if list.NextCursor == "" {
				break
			}
			params.Cursor = list.NextCursor
		}
		slog.Info("connected MCP server", "server", server.Name, "tools", len(bridge.specs))
	}

	return bridge, nil
}

func (b *MCPBridge) Describe() []Spec {
	out := make([]Spec, len(b.specs))
	copy(out, b.specs)
	return out
}

func (b *MCPBridge) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	session, ok := b.sessions[name]
	if !ok {
		return "", fmt.Errorf("tool %q is not provided by any connected MCP server", name)
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: params})
	if err != nil {
		return "", fmt.Errorf("call tool %q: %w", name, err)
	}
	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %q failed: %s", name, text)
	}
	return text, nil
}

// Close terminates all server subprocesses. Safe to call more than once.
func (b *MCPBridge) Close() {
	closed := map[*mcpsdk.ClientSession]struct{}{}
	for _, session := range b.sessions {
		if _, done := closed[session]; done {
			continue
		}
		closed[session] = struct{}{}
		_ = session.Close()
	}
	b.sessions = map[string]*mcpsdk.ClientSession{}
	for _, cmd := range b.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	b.procs = nil
}

var _ Bridge = (*MCPBridge)(nil)

// paramsFromSchema pulls flat parameter names, descriptions, and required
// flags out of a tool's input schema. The schema type is round-tripped
// through JSON so only the fields we need are touched.
func paramsFromSchema(schema any) []Param {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var parsed struct {
		Properties map[string]struct {
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	required := map[string]bool{}
	for _, name := range parsed.Required {
		required[name] = true
	}
	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Param, 0, len(names))
	for _, name := range names {
		out = append(out, Param{
			Name:        name,
			Description: parsed.Properties[name].Description,
			Required:    required[name],
		})
	}
	return out
}
