package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opsagent/internal/agent"
	"opsagent/internal/sqlguard"
)

const InterruptName = "tool_approval"

// WriteTools change state and always need a human decision.
var WriteTools = map[string]bool{
	"lambda_invoke":   true,
	"dynamodb_create": true,
	"dynamodb_update": true,
	"api_execute":     true,
}

var approveWords = map[string]bool{
	"y":       true,
	"yes":     true,
	"approve": true,
	"承認":      true,
}

// NeedsApproval reports whether a call to name with input must be approved.
// Athena queries pass without approval only when they are read-only.
func NeedsApproval(name string, input map[string]any) bool {
	if WriteTools[name] {
		return true
	}
	if name == "athena_query" {
		sql, _ := input["sql"].(string)
		return sqlguard.ReadOnly(sql) != nil
	}
	return false
}

func IsApproval(response string) bool {
	return approveWords[strings.ToLower(strings.TrimSpace(response))]
}

type Reason struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Message   string         `json:"message"`
}

type Request struct {
	SessionID   string
	InterruptID string
	ToolUseID   string
	Reason      Reason
	RaisedAt    time.Time
}

type Decision struct {
	SessionID   string
	InterruptID string
	ToolUseID   string
	ToolName    string
	ToolInput   map[string]any
	Response    string
	Approved    bool
	DecidedAt   time.Time
}

// Observer is told about every approval request and decision.
type Observer interface {
	Requested(ctx context.Context, r Request)
	Decided(ctx context.Context, d Decision)
}

// Hook interrupts state-changing tool calls until a user approves them.
type Hook struct {
	Observer Observer
	Now      func() time.Time
}

func NewHook(obs Observer) *Hook {
	return &Hook{Observer: obs, Now: time.Now}
}

func (h *Hook) RegisterHooks(r *agent.HookRegistry) {
	r.AddBeforeToolCall(h.requireApproval)
}

func (h *Hook) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Hook) requireApproval(ev *agent.BeforeToolCallEvent) {
	name := ev.ToolUse.Name
	if !NeedsApproval(name, ev.ToolUse.Input) {
		return
	}

	input := ev.ToolUse.Input
	if input == nil {
		input = map[string]any{}
	}
	reason := Reason{
		ToolName:  name,
		ToolInput: input,
		Message:   fmt.Sprintf("Tool '%s' will be executed. Do you approve?", name),
	}

	response, ok := ev.Interrupt(InterruptName, reason)
	if !ok {
		if h.Observer != nil {
			h.Observer.Requested(ev.Ctx, Request{
				SessionID:   ev.SessionID,
				InterruptID: agent.InterruptID(ev.ToolUse.ID, InterruptName),
				ToolUseID:   ev.ToolUse.ID,
				Reason:      reason,
				RaisedAt:    h.now(),
			})
		}
		return
	}

	approved := IsApproval(response)
	if h.Observer != nil {
		h.Observer.Decided(ev.Ctx, Decision{
			SessionID:   ev.SessionID,
			InterruptID: agent.InterruptID(ev.ToolUse.ID, InterruptName),
			ToolUseID:   ev.ToolUse.ID,
			ToolName:    name,
			ToolInput:   input,
			Response:    response,
			Approved:    approved,
			DecidedAt:   h.now(),
		})
	}
	if !approved {
		ev.CancelTool = fmt.Sprintf("User denied execution of tool '%s'", name)
	}
}
