// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"opsagent/internal/llm"
)

// Scripted replays Responses in order and records every request.
type Scripted struct {
	mu        sync.Mutex
	Responses []*llm.Response
	Requests  []llm.Request
	Err       error
}

func (s *Scripted) Converse(ctx context.Context, req llm.Request, onText func(string)) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted response for call %d", len(s.Requests))
	}
	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	for _, b := range resp.Message.Content {
		if b.Text != "" && onText != nil {
			onText(b.Text)
		}
	}
	return resp, nil
}

// Text is an end_turn reply.
func Text(s string) *llm.Response {
	return &llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(s)}},
		StopReason: llm.StopEndTurn,
	}
}

// ToolCalls is a tool_use reply calling each of uses in order.
func ToolCalls(uses ...llm.ToolUse) *llm.Response {
	content := make([]llm.ContentBlock, 0, len(uses))
	for i := range uses {
		u := uses[i]
		content = append(content, llm.ContentBlock{ToolUse: &u})
	}
	return &llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: content},
		StopReason: llm.StopToolUse,
	}
}
