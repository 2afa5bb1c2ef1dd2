package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownTool = errors.New("unknown tool")

type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already exists", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, args)
}

// Spec is the model-facing description of a tool.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func (r *Registry) Specs() []Spec {
	list := r.List()
	specs := make([]Spec, 0, len(list))
	for _, tool := range list {
		specs = append(specs, Spec{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: buildInputSchema(tool.Parameters()),
		})
	}
	return specs
}

func buildInputSchema(params []ParameterDef) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)

	for _, p := range params {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
