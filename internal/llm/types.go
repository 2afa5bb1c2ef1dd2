package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopSequence      StopReason = "stop_sequence"
	StopGuardrail     StopReason = "guardrail_intervened"
	StopContentFilter StopReason = "content_filtered"
)

type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock holds exactly one of Text, ToolUse or ToolResult.
type ContentBlock struct {
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

type ToolUse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type ToolResult struct {
	ToolUseID string           `json:"tool_use_id"`
	Status    ToolResultStatus `json:"status"`
	Content   string           `json:"content"`
}

type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

type Usage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
}

type Response struct {
	Message    Message
	StopReason StopReason
	Usage      Usage
}

// ToolUses returns the tool calls of the message in order.
func (m Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Content {
		if b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// Model produces the next assistant message. Text is passed to onText as it
// is generated.
type Model interface {
	Converse(ctx context.Context, req Request, onText func(string)) (*Response, error)
}

func TextBlock(s string) ContentBlock { return ContentBlock{Text: s} }

func ToolResultBlock(id string, status ToolResultStatus, content string) ContentBlock {
	return ContentBlock{ToolResult: &ToolResult{ToolUseID: id, Status: status, Content: content}}
}
