package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	name  string
	defs  []ToolDef
	calls []string
}

func (f *fakeServer) Name() string { return f.name }

func (f *fakeServer) Tools(context.Context) ([]ToolDef, error) { return f.defs, nil }

func (f *fakeServer) Call(_ context.Context, tool string, args map[string]any) (string, error) {
	f.calls = append(f.calls, tool)
	if tool == "explode" {
		return "", errors.New("boom")
	}
	return fmt.Sprintf("%s(%v)", tool, args["q"]), nil
}

func toolDefs(names ...string) []ToolDef {
	defs := make([]ToolDef, 0, len(names))
	for _, n := range names {
		defs = append(defs, ToolDef{
			Name:        n,
			Description: n + " tool",
			InputSchema: map[string]any{"type": "object"},
		})
	}
	return defs
}

func TestRegisterAndInvoke(t *testing.T) {
	d := NewDispatcher()
	srv := &fakeServer{name: "search", defs: toolDefs("web_search", "news_search")}

	require.NoError(t, d.Register(context.Background(), srv))
	require.Equal(t, 2, d.Len())

	out, err := d.Invoke(context.Background(), "web_search", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, "web_search(go)", out)
	assert.Equal(t, []string{"web_search"}, srv.calls)
}

func TestRegisterDuplicateLeavesNothingPartial(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(context.Background(), &fakeServer{
		name: "search", defs: toolDefs("web_search"),
	}))

	// Second server advertises a fresh tool plus a colliding one.
	err := d.Register(context.Background(), &fakeServer{
		name: "crawler", defs: toolDefs("crawl", "web_search"),
	})

	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "web_search", dup.Tool)
	assert.Equal(t, "search", dup.Existing)
	assert.Equal(t, "crawler", dup.Incoming)

	// The rejected server's fresh tool must not be partially visible.
	assert.Equal(t, 1, d.Len())
	_, err = d.Invoke(context.Background(), "crawl", nil)
	var unknown *UnknownToolError
	assert.ErrorAs(t, err, &unknown)
}

func TestInvokeUnknownToolIsTypedError(t *testing.T) {
	d := NewDispatcher()

	_, err := d.Invoke(context.Background(), "nope", nil)

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Tool)
}

func TestInvokeWrapsServerError(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(context.Background(), &fakeServer{
		name: "danger", defs: toolDefs("explode"),
	}))

	_, err := d.Invoke(context.Background(), "explode", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "danger")
}

func TestSchemasSortedByName(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(context.Background(), &fakeServer{
		name: "mixed", defs: toolDefs("zeta", "alpha", "mid"),
	}))

	schemas := d.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "mid", schemas[1].Name)
	assert.Equal(t, "zeta", schemas[2].Name)
	assert.Equal(t, "alpha tool", schemas[0].Description)
}
