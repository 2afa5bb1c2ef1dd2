package agent

import (
	"context"

	"github.com/google/uuid"

	"opsagent/internal/llm"
)

// Interrupt asks the caller for input before a tool call may proceed.
type Interrupt struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason any    `json:"reason"`
}

var interruptNamespace = uuid.MustParse("8f6b2f0e-4d1a-5c55-9a57-3c1b7c2e6d10")

// InterruptID is stable for a given tool use and interrupt name, so a resumed
// turn can match responses to the interrupts it raised earlier.
func InterruptID(toolUseID, name string) string {
	return uuid.NewSHA1(interruptNamespace, []byte(toolUseID+":"+name)).String()
}

// BeforeToolCallEvent is passed to hooks before a tool executes. Setting
// CancelTool skips execution and reports the message as an error result.
type BeforeToolCallEvent struct {
	Ctx        context.Context
	SessionID  string
	ToolUse    llm.ToolUse
	CancelTool string

	responses map[string]string
	raised    []Interrupt
}

// Interrupt returns the caller's response when resuming. Otherwise it records
// the interrupt, which parks the turn, and returns false.
func (e *BeforeToolCallEvent) Interrupt(name string, reason any) (string, bool) {
	id := InterruptID(e.ToolUse.ID, name)
	if r, ok := e.responses[id]; ok {
		return r, true
	}
	e.raised = append(e.raised, Interrupt{ID: id, Name: name, Reason: reason})
	return "", false
}

type BeforeToolCallFunc func(*BeforeToolCallEvent)

type HookRegistry struct {
	beforeToolCall []BeforeToolCallFunc
}

func (h *HookRegistry) AddBeforeToolCall(cb BeforeToolCallFunc) {
	h.beforeToolCall = append(h.beforeToolCall, cb)
}

// HookProvider registers a set of related callbacks at once.
type HookProvider interface {
	RegisterHooks(*HookRegistry)
}

func (h *HookRegistry) fireBeforeToolCall(ev *BeforeToolCallEvent) {
	for _, cb := range h.beforeToolCall {
		cb(ev)
	}
}
