package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsagent/internal/llm"
	"opsagent/internal/llm/llmtest"
	"opsagent/internal/session"
	"opsagent/internal/tools"
)

// gate interrupts every call to the "deploy" tool and approves on "ok".
type gate struct{}

func (gate) RegisterHooks(r *HookRegistry) {
	r.AddBeforeToolCall(func(ev *BeforeToolCallEvent) {
		if ev.ToolUse.Name != "deploy" {
			return
		}
		resp, ok := ev.Interrupt("tool_approval", map[string]any{"tool_name": ev.ToolUse.Name})
		if ok && resp != "ok" {
			ev.CancelTool = "denied"
		}
	})
}

type calls struct{ names []string }

func testRegistry(c *calls) *tools.Registry {
	r := tools.NewRegistry()
	add := func(name string, fn func(tools.Args) (any, error)) {
		_ = r.Register(&tools.Func{ToolName: name, Desc: name, Fn: func(ctx context.Context, a tools.Args) (any, error) {
			c.names = append(c.names, name)
			return fn(a)
		}})
	}
	add("list", func(tools.Args) (any, error) { return []string{"a", "b"}, nil })
	add("deploy", func(tools.Args) (any, error) { return "deployed", nil })
	add("broken", func(tools.Args) (any, error) { return nil, errors.New("boom") })
	return r
}

func collect(events *[]Event) func(Event) {
	return func(e Event) { *events = append(*events, e) }
}

func lastResults(t *testing.T, sess *session.Session) []llm.ToolResult {
	t.Helper()
	last := sess.Messages[len(sess.Messages)-1]
	require.Equal(t, llm.RoleUser, last.Role)
	var out []llm.ToolResult
	for _, b := range last.Content {
		if b.ToolResult != nil {
			out = append(out, *b.ToolResult)
		}
	}
	return out
}

func TestStream_TextOnly(t *testing.T) {
	model := &llmtest.Scripted{Responses: []*llm.Response{llmtest.Text("hello there")}}
	a := New(model, testRegistry(&calls{}), WithSystemPrompt("be nice"))
	sess := session.New("s-1")

	var events []Event
	done, err := a.Stream(context.Background(), sess, Input{Prompt: "hi"}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "end_turn", done.StopReason)
	require.Len(t, events, 2)
	assert.Equal(t, "hello there", events[0].Text)
	assert.Equal(t, done, events[1].Complete)

	require.Len(t, model.Requests, 1)
	assert.Equal(t, "be nice", model.Requests[0].System)
	assert.Len(t, model.Requests[0].Tools, 3)
	assert.Len(t, sess.Messages, 2)
}

func TestStream_ToolLoop(t *testing.T) {
	c := &calls{}
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(
			llm.ToolUse{ID: "t1", Name: "list"},
			llm.ToolUse{ID: "t2", Name: "broken"},
			llm.ToolUse{ID: "t3", Name: "missing"},
		),
		llmtest.Text("done"),
	}}
	a := New(model, testRegistry(c))
	sess := session.New("s-1")

	done, err := a.Stream(context.Background(), sess, Input{Prompt: "go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", done.StopReason)
	assert.Equal(t, []string{"list", "broken"}, c.names)

	// user, assistant(tool_use), user(results), assistant(text)
	require.Len(t, sess.Messages, 4)
	results := sess.Messages[2].Content
	require.Len(t, results, 3)
	assert.Equal(t, llm.ToolResult{ToolUseID: "t1", Status: llm.ToolResultSuccess, Content: `["a","b"]`}, *results[0].ToolResult)
	assert.Equal(t, llm.ToolResult{ToolUseID: "t2", Status: llm.ToolResultError, Content: "Error: boom"}, *results[1].ToolResult)
	assert.Equal(t, llm.ToolResultError, results[2].ToolResult.Status)
	assert.Equal(t, "Error: unknown tool: missing", results[2].ToolResult.Content)
}

func TestStream_InterruptAndApprove(t *testing.T) {
	c := &calls{}
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "list"}, llm.ToolUse{ID: "t2", Name: "deploy"}),
	}}
	a := New(model, testRegistry(c), WithHooks(gate{}))
	sess := session.New("s-1")

	var events []Event
	done, err := a.Stream(context.Background(), sess, Input{Prompt: "ship it"}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, StopReasonInterrupt, done.StopReason)
	require.Len(t, done.Interrupts, 1)
	in := done.Interrupts[0]
	assert.Equal(t, InterruptID("t2", "tool_approval"), in.ID)
	assert.Equal(t, "tool_approval", in.Name)
	assert.Equal(t, []string{"list"}, c.names)

	require.NotNil(t, sess.Pending)
	assert.Equal(t, []string{in.ID}, sess.Pending.InterruptIDs)
	assert.Contains(t, sess.Pending.Results, "t1")
	assert.Len(t, sess.Messages, 2)

	model.Responses = []*llm.Response{llmtest.Text("shipped")}
	done, err = a.Stream(context.Background(), sess, Input{
		InterruptResponses: []InterruptResponse{{InterruptID: in.ID, Response: "ok"}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "end_turn", done.StopReason)
	assert.Equal(t, []string{"list", "deploy"}, c.names)
	assert.Nil(t, sess.Pending)

	require.Len(t, sess.Messages, 4)
	results := sess.Messages[2].Content
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].ToolResult.ToolUseID)
	assert.Equal(t, llm.ToolResult{ToolUseID: "t2", Status: llm.ToolResultSuccess, Content: "deployed"}, *results[1].ToolResult)
}

func TestStream_InterruptDenied(t *testing.T) {
	c := &calls{}
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "deploy"}),
		llmtest.Text("ok, not deploying"),
	}}
	a := New(model, testRegistry(c), WithHooks(gate{}))
	sess := session.New("s-1")

	done, err := a.Stream(context.Background(), sess, Input{Prompt: "ship it"}, nil)
	require.NoError(t, err)
	id := done.Interrupts[0].ID

	_, err = a.Stream(context.Background(), sess, Input{
		InterruptResponses: []InterruptResponse{{InterruptID: id, Response: "no"}},
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, c.names)
	assert.Equal(t, []llm.ToolResult{{ToolUseID: "t1", Status: llm.ToolResultError, Content: "denied"}}, lastResults(t, &session.Session{Messages: sess.Messages[:3]}))
}

func TestStream_ResumeWithUnknownIDReinterrupts(t *testing.T) {
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "deploy"}),
	}}
	a := New(model, testRegistry(&calls{}), WithHooks(gate{}))
	sess := session.New("s-1")

	_, err := a.Stream(context.Background(), sess, Input{Prompt: "ship it"}, nil)
	require.NoError(t, err)

	done, err := a.Stream(context.Background(), sess, Input{
		InterruptResponses: []InterruptResponse{{InterruptID: "other", Response: "ok"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, StopReasonInterrupt, done.StopReason)
	assert.NotNil(t, sess.Pending)
	assert.Len(t, model.Requests, 1)
}

func TestStream_ResumeWithoutPending(t *testing.T) {
	a := New(&llmtest.Scripted{}, testRegistry(&calls{}))
	_, err := a.Stream(context.Background(), session.New("s-1"), Input{
		InterruptResponses: []InterruptResponse{{InterruptID: "x", Response: "y"}},
	}, nil)
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	_, err = a.Stream(context.Background(), session.New("s-1"), Input{Prompt: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestStream_NewPromptSupersedesPending(t *testing.T) {
	c := &calls{}
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "list"}, llm.ToolUse{ID: "t2", Name: "deploy"}),
		llmtest.Text("never mind then"),
	}}
	a := New(model, testRegistry(c), WithHooks(gate{}))
	sess := session.New("s-1")

	_, err := a.Stream(context.Background(), sess, Input{Prompt: "ship it"}, nil)
	require.NoError(t, err)

	done, err := a.Stream(context.Background(), sess, Input{Prompt: "actually, stop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", done.StopReason)
	assert.Nil(t, sess.Pending)
	assert.Equal(t, []string{"list"}, c.names)

	msg := sess.Messages[2]
	require.Len(t, msg.Content, 3)
	assert.Equal(t, llm.ToolResultSuccess, msg.Content[0].ToolResult.Status)
	assert.Equal(t, llm.ToolResult{ToolUseID: "t2", Status: llm.ToolResultError, Content: "cancelled: superseded by a new prompt"}, *msg.Content[1].ToolResult)
	assert.Equal(t, "actually, stop", msg.Content[2].Text)
}

func TestStream_MaxIterations(t *testing.T) {
	model := &llmtest.Scripted{Responses: []*llm.Response{
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "list"}),
		llmtest.ToolCalls(llm.ToolUse{ID: "t2", Name: "list"}),
	}}
	a := New(model, testRegistry(&calls{}), WithMaxIterations(2))

	sess := session.New("s-1")
	done, err := a.Stream(context.Background(), sess, Input{Prompt: "loop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StopReasonMaxIterations, done.StopReason)
	assert.Len(t, model.Requests, 2)

	model.Responses = []*llm.Response{llmtest.Text("stopped looping")}
	done, err = a.Stream(context.Background(), sess, Input{Prompt: "what happened?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, string(llm.StopEndTurn), done.StopReason)

	sent := model.Requests[2].Messages
	assertAlternates(t, sent)
	last := sent[len(sent)-1]
	require.Len(t, last.Content, 2)
	require.NotNil(t, last.Content[0].ToolResult)
	assert.Equal(t, "t2", last.Content[0].ToolResult.ToolUseID)
	assert.Equal(t, "what happened?", last.Content[1].Text)
}

func TestStream_EmptyAssistantReplyKeepsAlternation(t *testing.T) {
	model := &llmtest.Scripted{Responses: []*llm.Response{
		{Message: llm.Message{Role: llm.RoleAssistant}, StopReason: llm.StopEndTurn},
		llmtest.Text("here"),
	}}
	a := New(model, nil)
	sess := session.New("s-1")

	_, err := a.Stream(context.Background(), sess, Input{Prompt: "one"}, nil)
	require.NoError(t, err)
	_, err = a.Stream(context.Background(), sess, Input{Prompt: "two"}, nil)
	require.NoError(t, err)

	assertAlternates(t, model.Requests[1].Messages)
	assert.Equal(t, "one", model.Requests[1].Messages[0].Content[0].Text)
	assert.Equal(t, "two", model.Requests[1].Messages[0].Content[1].Text)
}

func assertAlternates(t *testing.T, msgs []llm.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].Role, msgs[i].Role, "consecutive %s messages at %d", msgs[i].Role, i)
	}
}

func TestStream_ModelError(t *testing.T) {
	a := New(&llmtest.Scripted{Err: errors.New("ThrottlingException")}, nil)
	_, err := a.Stream(context.Background(), session.New("s-1"), Input{Prompt: "hi"}, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "model: "))
}

func TestInterruptID(t *testing.T) {
	a := InterruptID("tooluse_1", "tool_approval")
	assert.Equal(t, a, InterruptID("tooluse_1", "tool_approval"))
	assert.NotEqual(t, a, InterruptID("tooluse_2", "tool_approval"))
	assert.Len(t, a, 36)
}
