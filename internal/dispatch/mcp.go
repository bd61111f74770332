package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/rand/memento/internal/config"
)

// StdioServer adapts an MCP server spawned over stdio to the ToolServer
// interface.
type StdioServer struct {
	name   string
	client *mcpclient.Client
}

// ConnectStdio launches the server process and completes the MCP handshake.
func ConnectStdio(ctx context.Context, spec config.ToolServer) (*StdioServer, error) {
	c, err := mcpclient.NewStdioMCPClient(spec.Command, spec.Env, spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("start tool server %q: %w", spec.Name, err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "memento", Version: "1.0"},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize tool server %q: %w", spec.Name, err)
	}

	name := spec.Name
	if name == "" {
		name = spec.Command
	}
	return &StdioServer{name: name, client: c}, nil
}

// ConnectAll starts every configured server concurrently. Startup is the
// only concurrent phase; query processing stays sequential.
func ConnectAll(ctx context.Context, specs []config.ToolServer) ([]*StdioServer, error) {
	servers := make([]*StdioServer, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			s, err := ConnectStdio(gctx, spec)
			if err != nil {
				return err
			}
			servers[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range servers {
			if s != nil {
				_ = s.Close()
			}
		}
		return nil, err
	}
	return servers, nil
}

// Name implements ToolServer.
func (s *StdioServer) Name() string { return s.name }

// Tools implements ToolServer.
func (s *StdioServer) Tools(ctx context.Context) ([]ToolDef, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	defs := make([]ToolDef, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := inputSchemaMap(t)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
		}
		defs = append(defs, ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return defs, nil
}

// Call implements ToolServer. A result flagged as an error by the server is
// surfaced as a Go error so it propagates to the per-query handler.
func (s *StdioServer) Call(ctx context.Context, tool string, args map[string]any) (string, error) {
	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", err
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool reported error: %s", text)
	}
	return text, nil
}

// Close terminates the server process.
func (s *StdioServer) Close() error {
	return s.client.Close()
}

func inputSchemaMap(t mcp.Tool) (map[string]any, error) {
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func flattenContent(content []mcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
