package tools

import "context"

// Tool is a capability the model can call by name.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParameterDef
	Execute(ctx context.Context, args map[string]any) (any, error)
}

type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" | "integer" | "number" | "boolean" | "object" | "array"
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Func adapts a closure to Tool.
type Func struct {
	ToolName string
	Desc     string
	Params   []ParameterDef
	Fn       func(ctx context.Context, args Args) (any, error)
}

func (f *Func) Name() string               { return f.ToolName }
func (f *Func) Description() string        { return f.Desc }
func (f *Func) Parameters() []ParameterDef { return f.Params }

func (f *Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	return f.Fn(ctx, Args(args))
}
