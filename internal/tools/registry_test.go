package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *Func {
	return &Func{
		ToolName: name,
		Desc:     "echo " + name,
		Params: []ParameterDef{
			{Name: "text", Type: "string", Description: "what to echo", Required: true},
			{Name: "times", Type: "integer", Description: "repeat count"},
		},
		Fn: func(ctx context.Context, a Args) (any, error) {
			return a.String("text")
		},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("b_tool")))
	require.NoError(t, r.Register(echoTool("a_tool")))

	err := r.Register(echoTool("a_tool"))
	assert.EqualError(t, err, "tool a_tool already exists")

	got, ok := r.Get("a_tool")
	require.True(t, ok)
	assert.Equal(t, "a_tool", got.Name())

	_, ok = r.Get("nope")
	assert.False(t, ok)

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"a_tool", "b_tool"}, names)
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Execute(context.Background(), "echo", nil)
	assert.EqualError(t, err, `missing required argument "text"`)

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, ErrUnknownTool))
	assert.EqualError(t, err, "unknown tool: missing")
}

func TestRegistry_Specs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	require.NoError(t, r.Register(&Func{ToolName: "noargs", Desc: "no arguments", Fn: func(context.Context, Args) (any, error) { return nil, nil }}))

	specs := r.Specs()
	require.Len(t, specs, 2)

	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "echo echo", specs[0].Description)
	assert.Equal(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":  map[string]any{"type": "string", "description": "what to echo"},
			"times": map[string]any{"type": "integer", "description": "repeat count"},
		},
		"required": []string{"text"},
	}, specs[0].InputSchema)

	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, specs[1].InputSchema)
}
