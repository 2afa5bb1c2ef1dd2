package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"opsagent/internal/agent"
	"opsagent/internal/handlers"
)

type chat struct {
	invoker   *handlers.Invoker
	sessionID string
	in        *bufio.Scanner
	out       io.Writer
}

func newChat(iv *handlers.Invoker, sessionID string, in io.Reader, out io.Writer) *chat {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}
	return &chat{invoker: iv, sessionID: sessionID, in: bufio.NewScanner(in), out: out}
}

func (c *chat) loop(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, "you> ")
		if !c.in.Scan() {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := c.send(ctx, line); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// send runs one prompt, asking on the terminal for every approval the agent
// raises until the turn completes.
func (c *chat) send(ctx context.Context, prompt string) error {
	p := handlers.Payload{Prompt: prompt, SessionID: c.sessionID}
	for {
		var pending []agent.Interrupt
		w := handlers.ChunkWriterFunc(func(chunk string) error {
			if ic, ok := parseInterrupt(chunk); ok {
				pending = append(pending, ic.Interrupts...)
				return nil
			}
			_, err := io.WriteString(c.out, chunk)
			return err
		})
		if _, err := c.invoker.Invoke(ctx, p, "", w); err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		if len(pending) == 0 {
			return nil
		}

		p = handlers.Payload{SessionID: c.sessionID}
		for _, it := range pending {
			fmt.Fprintf(c.out, "%s\napprove? [y/N] ", describe(it))
			answer := ""
			if c.in.Scan() {
				answer = strings.TrimSpace(c.in.Text())
			}
			p.InterruptResponses = append(p.InterruptResponses, handlers.InterruptResponseIn{
				InterruptResponse: agent.InterruptResponse{InterruptID: it.ID, Response: answer},
			})
		}
	}
}

func parseInterrupt(chunk string) (*handlers.InterruptChunk, bool) {
	if !strings.HasPrefix(chunk, "{") {
		return nil, false
	}
	var ic handlers.InterruptChunk
	if err := json.Unmarshal([]byte(chunk), &ic); err != nil || ic.Type != "interrupt" {
		return nil, false
	}
	return &ic, true
}

func describe(it agent.Interrupt) string {
	reason, ok := it.Reason.(map[string]any)
	if !ok {
		return fmt.Sprintf("[%s] %v", it.Name, it.Reason)
	}
	msg, _ := reason["message"].(string)
	input, _ := json.MarshalIndent(reason["tool_input"], "  ", "  ")
	return fmt.Sprintf("[%s] %s\n  input: %s", it.Name, msg, input)
}
