package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	"opsagent/internal/agent"
	"opsagent/internal/session"
)

// SessionHeader carries the session id when the payload does not.
const SessionHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

var ErrBadRequest = errors.New("bad request")

type Payload struct {
	Prompt             string                `json:"prompt"`
	SessionID          string                `json:"session_id,omitempty"`
	InterruptResponses []InterruptResponseIn `json:"interrupt_responses,omitempty"`
}

type InterruptResponseIn struct {
	InterruptResponse agent.InterruptResponse `json:"interruptResponse"`
}

// InterruptChunk is the chunk emitted when a turn stops for approval.
type InterruptChunk struct {
	Type       string            `json:"type"`
	Interrupts []agent.Interrupt `json:"interrupts"`
	SessionID  string            `json:"session_id"`
}

type ChunkWriter interface {
	WriteChunk(chunk string) error
}

type ChunkWriterFunc func(string) error

func (f ChunkWriterFunc) WriteChunk(chunk string) error { return f(chunk) }

type Flusher interface {
	Flush(ctx context.Context) error
}

// Invocation is a validated payload bound to a session.
type Invocation struct {
	SessionID string
	Input     agent.Input
}

type Invoker struct {
	Agent    *agent.Agent
	Sessions session.Store
	Audit    Flusher
	NewID    func() string
}

func NewInvoker(a *agent.Agent, store session.Store, audit Flusher) *Invoker {
	return &Invoker{Agent: a, Sessions: store, Audit: audit, NewID: uuid.NewString}
}

// DecodePayload parses a raw invocation body.
func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	if len(strings.TrimSpace(string(body))) == 0 {
		return p, fmt.Errorf("%w: empty body", ErrBadRequest)
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("%w: invalid json: %v", ErrBadRequest, err)
	}
	return p, nil
}

// Prepare validates p and picks the session id: payload first, then the
// header value, then a new id.
func (iv *Invoker) Prepare(p Payload, headerSessionID string) (*Invocation, error) {
	in := agent.Input{Prompt: p.Prompt}
	for _, r := range p.InterruptResponses {
		ir := r.InterruptResponse
		if strings.TrimSpace(ir.InterruptID) == "" {
			return nil, fmt.Errorf("%w: interrupt response without interruptId", ErrBadRequest)
		}
		in.InterruptResponses = append(in.InterruptResponses, ir)
	}
	if len(in.InterruptResponses) == 0 && strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}

	sid := strings.TrimSpace(p.SessionID)
	if sid == "" {
		sid = strings.TrimSpace(headerSessionID)
	}
	if sid == "" {
		newID := iv.NewID
		if newID == nil {
			newID = uuid.NewString
		}
		sid = newID()
	}
	return &Invocation{SessionID: sid, Input: in}, nil
}

// Run executes one agent turn and writes its chunks to w. The session is
// saved even when writing fails part way.
func (iv *Invoker) Run(ctx context.Context, inv *Invocation, w ChunkWriter) error {
	logger := log.WithField("session_id", inv.SessionID)

	sess, err := iv.Sessions.Load(ctx, inv.SessionID)
	if err != nil {
		logger.WithError(err).Error("load session")
		return err
	}

	var writeErr error
	write := func(chunk string) {
		if writeErr == nil {
			writeErr = w.WriteChunk(chunk)
		}
	}
	emit := func(ev agent.Event) {
		if ev.Text != "" {
			write(ev.Text)
		}
		if c := ev.Complete; c != nil && c.StopReason == agent.StopReasonInterrupt {
			b, err := json.Marshal(InterruptChunk{Type: "interrupt", Interrupts: c.Interrupts, SessionID: inv.SessionID})
			if err != nil {
				writeErr = fmt.Errorf("encode interrupt chunk: %w", err)
				return
			}
			write(string(b))
		}
	}

	done, err := iv.Agent.Stream(ctx, sess, inv.Input, emit)
	if err != nil {
		logger.WithError(err).Error("invocation failed")
		if errors.Is(err, agent.ErrNoPendingInterrupt) || errors.Is(err, agent.ErrEmptyPrompt) {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		// Tools may have run before the failure; their results must be stored
		// so a retried resume cannot execute them again.
		saveCtx := context.WithoutCancel(ctx)
		if serr := iv.Sessions.Save(saveCtx, sess); serr != nil {
			logger.WithError(serr).Error("save session")
		}
		iv.flushAudit(saveCtx, logger)
		return err
	}

	if err := iv.Sessions.Save(ctx, sess); err != nil {
		logger.WithError(err).Error("save session")
		return err
	}
	iv.flushAudit(ctx, logger)

	logger.WithField("stop_reason", done.StopReason).Info("invocation complete")
	if writeErr != nil {
		return fmt.Errorf("write chunk: %w", writeErr)
	}
	return nil
}

func (iv *Invoker) flushAudit(ctx context.Context, logger log.Interface) {
	if iv.Audit == nil {
		return
	}
	if err := iv.Audit.Flush(ctx); err != nil {
		logger.WithError(err).Warn("audit flush failed")
	}
}

func (iv *Invoker) Invoke(ctx context.Context, p Payload, headerSessionID string, w ChunkWriter) (string, error) {
	inv, err := iv.Prepare(p, headerSessionID)
	if err != nil {
		return "", err
	}
	return inv.SessionID, iv.Run(ctx, inv, w)
}
