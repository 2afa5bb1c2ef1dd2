package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/aws/smithy-go"

	"opsagent/internal/llm"
	"opsagent/internal/session"
	"opsagent/internal/tools"
)

const (
	DefaultMaxToolIterations = 20

	StopReasonInterrupt     = "interrupt"
	StopReasonMaxIterations = "max_iterations"

	supersededMessage = "cancelled: superseded by a new prompt"
)

var (
	ErrNoPendingInterrupt = errors.New("no pending interrupt to resume")
	ErrEmptyPrompt        = errors.New("prompt is empty")
)

type InterruptResponse struct {
	InterruptID string `json:"interruptId"`
	Response    string `json:"response"`
}

// Input is one invocation: either a new prompt or answers to the interrupts
// of the parked turn.
type Input struct {
	Prompt             string
	InterruptResponses []InterruptResponse
}

type Complete struct {
	StopReason string      `json:"stop_reason"`
	Interrupts []Interrupt `json:"interrupts,omitempty"`
}

// Event is either a text delta or the final Complete of a turn.
type Event struct {
	Text     string
	Complete *Complete
}

type Agent struct {
	model         llm.Model
	registry      *tools.Registry
	hooks         HookRegistry
	systemPrompt  string
	maxIterations int
	logger        log.Interface
}

type Option func(*Agent)

func WithSystemPrompt(p string) Option {
	return func(a *Agent) { a.systemPrompt = p }
}

func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

func WithHooks(providers ...HookProvider) Option {
	return func(a *Agent) {
		for _, p := range providers {
			p.RegisterHooks(&a.hooks)
		}
	}
}

func WithLogger(l log.Interface) Option {
	return func(a *Agent) { a.logger = l }
}

func New(model llm.Model, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		model:         model,
		registry:      registry,
		maxIterations: DefaultMaxToolIterations,
		logger:        log.Log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Hooks() *HookRegistry { return &a.hooks }

// Stream runs one turn against sess, emitting text as the model produces it
// and a Complete when the turn ends. sess is updated in place; the caller
// persists it.
func (a *Agent) Stream(ctx context.Context, sess *session.Session, in Input, emit func(Event)) (*Complete, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	logger := a.logger.WithField("session_id", sess.ID)

	if len(in.InterruptResponses) > 0 {
		if sess.Pending == nil {
			return nil, ErrNoPendingInterrupt
		}
		responses := make(map[string]string, len(in.InterruptResponses))
		for _, r := range in.InterruptResponses {
			responses[r.InterruptID] = r.Response
		}
		logger.WithField("responses", len(responses)).Info("resuming interrupted turn")
		if interrupts := a.runTools(ctx, logger, sess, sess.Pending, responses); len(interrupts) > 0 {
			return a.finish(emit, &Complete{StopReason: StopReasonInterrupt, Interrupts: interrupts}), nil
		}
	} else {
		prompt := strings.TrimSpace(in.Prompt)
		if prompt == "" {
			return nil, ErrEmptyPrompt
		}
		content := make([]llm.ContentBlock, 0, 1)
		if sess.Pending != nil {
			logger.Info("pending turn superseded by new prompt")
			content = append(content, closePending(sess.Pending)...)
			sess.Pending = nil
		}
		content = append(content, llm.TextBlock(in.Prompt))
		appendUser(sess, content)
	}

	specs := a.toolSpecs()
	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.model.Converse(ctx, llm.Request{
			System:   a.systemPrompt,
			Messages: sess.Messages,
			Tools:    specs,
		}, func(s string) { emit(Event{Text: s}) })
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		if len(resp.Message.Content) > 0 {
			sess.Messages = append(sess.Messages, resp.Message)
		}

		logger.WithFields(log.Fields{
			"stop_reason":   resp.StopReason,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		}).Debug("model turn")

		uses := resp.Message.ToolUses()
		if resp.StopReason != llm.StopToolUse || len(uses) == 0 {
			return a.finish(emit, &Complete{StopReason: string(resp.StopReason)}), nil
		}

		pending := &session.PendingTurn{ToolUses: uses, Results: map[string]llm.ToolResult{}}
		if interrupts := a.runTools(ctx, logger, sess, pending, nil); len(interrupts) > 0 {
			return a.finish(emit, &Complete{StopReason: StopReasonInterrupt, Interrupts: interrupts}), nil
		}
	}

	logger.WithField("max_iterations", a.maxIterations).Warn("tool iteration limit reached")
	return a.finish(emit, &Complete{StopReason: StopReasonMaxIterations}), nil
}

func (a *Agent) finish(emit func(Event), c *Complete) *Complete {
	emit(Event{Complete: c})
	return c
}

func (a *Agent) toolSpecs() []llm.ToolSpec {
	if a.registry == nil {
		return nil
	}
	specs := a.registry.Specs()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return out
}

// runTools executes the unfinished tool uses of turn in order. When any hook
// raises an interrupt the turn is parked on sess and the interrupts are
// returned; otherwise the results are appended as a user message.
func (a *Agent) runTools(ctx context.Context, logger log.Interface, sess *session.Session, turn *session.PendingTurn, responses map[string]string) []Interrupt {
	if turn.Results == nil {
		turn.Results = map[string]llm.ToolResult{}
	}

	var interrupts []Interrupt
	for _, tu := range turn.ToolUses {
		if _, done := turn.Results[tu.ID]; done {
			continue
		}
		ev := &BeforeToolCallEvent{Ctx: ctx, SessionID: sess.ID, ToolUse: tu, responses: responses}
		a.hooks.fireBeforeToolCall(ev)
		if len(ev.raised) > 0 {
			interrupts = append(interrupts, ev.raised...)
			continue
		}
		if ev.CancelTool != "" {
			logger.WithField("tool", tu.Name).Info("tool call cancelled")
			turn.Results[tu.ID] = llm.ToolResult{ToolUseID: tu.ID, Status: llm.ToolResultError, Content: ev.CancelTool}
			continue
		}
		turn.Results[tu.ID] = a.execute(ctx, logger, tu)
	}

	if len(interrupts) > 0 {
		turn.InterruptIDs = turn.InterruptIDs[:0]
		for _, in := range interrupts {
			turn.InterruptIDs = append(turn.InterruptIDs, in.ID)
		}
		sess.Pending = turn
		return interrupts
	}

	content := make([]llm.ContentBlock, 0, len(turn.ToolUses))
	for _, tu := range turn.ToolUses {
		r := turn.Results[tu.ID]
		content = append(content, llm.ContentBlock{ToolResult: &r})
	}
	appendUser(sess, content)
	sess.Pending = nil
	return nil
}

// appendUser adds content as a user message, folding it into a trailing
// user message so roles keep alternating. A turn cut short by the iteration
// limit or a model error leaves the conversation ending on the user side.
func appendUser(sess *session.Session, content []llm.ContentBlock) {
	if n := len(sess.Messages); n > 0 && sess.Messages[n-1].Role == llm.RoleUser {
		sess.Messages[n-1].Content = append(sess.Messages[n-1].Content, content...)
		return
	}
	sess.Messages = append(sess.Messages, llm.Message{Role: llm.RoleUser, Content: content})
}

func (a *Agent) execute(ctx context.Context, logger log.Interface, tu llm.ToolUse) llm.ToolResult {
	l := logger.WithFields(log.Fields{"tool": tu.Name, "tool_use_id": tu.ID})
	if a.registry == nil {
		return errorResult(tu.ID, fmt.Errorf("%w: %s", tools.ErrUnknownTool, tu.Name))
	}
	out, err := a.registry.Execute(ctx, tu.Name, tu.Input)
	if err != nil {
		l.WithFields(errorFields(err)).Warn("tool failed")
		return errorResult(tu.ID, err)
	}
	content, err := renderResult(out)
	if err != nil {
		l.WithError(err).Warn("tool result not encodable")
		return errorResult(tu.ID, err)
	}
	l.Info("tool executed")
	return llm.ToolResult{ToolUseID: tu.ID, Status: llm.ToolResultSuccess, Content: content}
}

func errorResult(id string, err error) llm.ToolResult {
	return llm.ToolResult{ToolUseID: id, Status: llm.ToolResultError, Content: "Error: " + err.Error()}
}

func renderResult(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}

// errorFields adds the AWS error code when err came from an AWS API.
func errorFields(err error) log.Fields {
	f := log.Fields{"error": err.Error()}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		f["aws_error_code"] = apiErr.ErrorCode()
		f["aws_error_fault"] = apiErr.ErrorFault().String()
	}
	return f
}

func closePending(turn *session.PendingTurn) []llm.ContentBlock {
	out := make([]llm.ContentBlock, 0, len(turn.ToolUses))
	for _, tu := range turn.ToolUses {
		r, done := turn.Results[tu.ID]
		if !done {
			r = llm.ToolResult{ToolUseID: tu.ID, Status: llm.ToolResultError, Content: supersededMessage}
		}
		out = append(out, llm.ContentBlock{ToolResult: &r})
	}
	return out
}
