package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsagent/internal/agent"
	"opsagent/internal/approval"
	"opsagent/internal/config"
	"opsagent/internal/handlers"
	"opsagent/internal/llm"
	"opsagent/internal/llm/llmtest"
	"opsagent/internal/session"
	"opsagent/internal/tools"
)

func newTestChat(t *testing.T, input string, responses ...*llm.Response) (*chat, *bytes.Buffer, *int) {
	t.Helper()
	calls := 0
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Func{ToolName: "lambda_invoke", Fn: func(ctx context.Context, a tools.Args) (any, error) {
		calls++
		return "invoked", nil
	}}))
	a := agent.New(&llmtest.Scripted{Responses: responses}, reg, agent.WithHooks(approval.NewHook(nil)))
	iv := handlers.NewInvoker(a, session.NewMemoryStore(), nil)

	var out bytes.Buffer
	return newChat(iv, "s-1", strings.NewReader(input), &out), &out, &calls
}

func TestChat_ApprovesAndResumes(t *testing.T) {
	c, out, calls := newTestChat(t, "yes\n",
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "lambda_invoke", Input: map[string]any{"function_name": "orders"}}),
		llmtest.Text("done"),
	)

	require.NoError(t, c.send(context.Background(), "invoke orders"))
	assert.Equal(t, 1, *calls)
	assert.Contains(t, out.String(), "Tool 'lambda_invoke' will be executed. Do you approve?")
	assert.Contains(t, out.String(), `"function_name": "orders"`)
	assert.Contains(t, out.String(), "done")
}

func TestChat_Denied(t *testing.T) {
	c, out, calls := newTestChat(t, "n\n",
		llmtest.ToolCalls(llm.ToolUse{ID: "t1", Name: "lambda_invoke", Input: map[string]any{"function_name": "orders"}}),
		llmtest.Text("skipped"),
	)

	require.NoError(t, c.send(context.Background(), "invoke orders"))
	assert.Equal(t, 0, *calls)
	assert.Contains(t, out.String(), "skipped")
}

func TestChat_Loop(t *testing.T) {
	c, out, _ := newTestChat(t, "\nhello\nquit\n", llmtest.Text("hi"))

	require.NoError(t, c.loop(context.Background()))
	assert.Equal(t, "you> you> hi\nyou> ", out.String())
}

func TestChat_NewSessionID(t *testing.T) {
	c := newChat(nil, "", strings.NewReader(""), &bytes.Buffer{})
	assert.Len(t, c.sessionID, 36)
}

func TestParseInterrupt(t *testing.T) {
	ic, ok := parseInterrupt(`{"type":"interrupt","interrupts":[{"id":"i-1","name":"tool_approval","reason":{"message":"m"}}],"session_id":"s"}`)
	require.True(t, ok)
	assert.Equal(t, "i-1", ic.Interrupts[0].ID)

	_, ok = parseInterrupt("plain text")
	assert.False(t, ok)
	_, ok = parseInterrupt(`{"type":"other"}`)
	assert.False(t, ok)
}

func TestListTools(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listTools(&out, &config.Config{}, false))

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "NAME"))
	assert.Regexp(t, `lambda_invoke\s+always`, s)
	assert.Regexp(t, `lambda_get_code\s+never`, s)
	assert.NotContains(t, s, "athena_query")

	out.Reset()
	require.NoError(t, listTools(&out, &config.Config{AthenaDatabase: "ops", AthenaOutputS3: "s3://r/"}, false))
	assert.Regexp(t, `athena_query\s+unless read-only`, out.String())
}

func TestListTools_Schema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listTools(&out, &config.Config{}, true))
	assert.Contains(t, out.String(), `"input_schema"`)
}
