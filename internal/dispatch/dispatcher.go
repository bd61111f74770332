// Package dispatch binds tool names to the servers that own them and routes
// invocations. Tool names are global: a name collision across servers is a
// configuration error surfaced at registration, never a silent override.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rand/memento/internal/llm"
)

// ToolDef describes one tool advertised by a server.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolServer is a long-lived process exposing tools. All servers are treated
// uniformly regardless of transport.
type ToolServer interface {
	// Name identifies the server in logs and errors.
	Name() string

	// Tools lists the tools the server advertises.
	Tools(ctx context.Context) ([]ToolDef, error)

	// Call invokes a tool and returns its free-form text result.
	Call(ctx context.Context, tool string, args map[string]any) (string, error)
}

// DuplicateToolError reports a tool name advertised by two servers.
type DuplicateToolError struct {
	Tool     string
	Existing string // server already owning the name
	Incoming string // server attempting to register it
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered by server %q, rejected duplicate from %q",
		e.Tool, e.Existing, e.Incoming)
}

// UnknownToolError reports an invocation of an unregistered name.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

type binding struct {
	server ToolServer
	def    ToolDef
}

// Dispatcher is a closed map from tool name to owning server.
type Dispatcher struct {
	tools map[string]binding
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tools: make(map[string]binding)}
}

// Register enumerates the server's tools and binds each name to it. On any
// duplicate the whole server is rejected and no binding from it remains
// visible.
func (d *Dispatcher) Register(ctx context.Context, server ToolServer) error {
	defs, err := server.Tools(ctx)
	if err != nil {
		return fmt.Errorf("list tools from %q: %w", server.Name(), err)
	}

	staged := make(map[string]binding, len(defs))
	for _, def := range defs {
		if existing, ok := d.tools[def.Name]; ok {
			return &DuplicateToolError{
				Tool:     def.Name,
				Existing: existing.server.Name(),
				Incoming: server.Name(),
			}
		}
		if _, ok := staged[def.Name]; ok {
			return &DuplicateToolError{
				Tool:     def.Name,
				Existing: server.Name(),
				Incoming: server.Name(),
			}
		}
		staged[def.Name] = binding{server: server, def: def}
	}

	for name, b := range staged {
		d.tools[name] = b
	}
	slog.Info("registered tool server", "server", server.Name(), "tools", len(staged))
	return nil
}

// Invoke forwards a call to the owning server. An unregistered name is a
// typed lookup error, never a no-op.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	b, ok := d.tools[name]
	if !ok {
		return "", &UnknownToolError{Tool: name}
	}
	result, err := b.server.Call(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("tool %q (server %q): %w", name, b.server.Name(), err)
	}
	return result, nil
}

// Schemas returns the aggregate capability schema for backend advertisement,
// sorted by name for deterministic prompts.
func (d *Dispatcher) Schemas() []llm.ToolSchema {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		def := d.tools[name].def
		out = append(out, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.InputSchema,
		})
	}
	return out
}

// Len reports how many tools are bound.
func (d *Dispatcher) Len() int { return len(d.tools) }
