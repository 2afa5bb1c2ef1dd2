package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-lambda-go/events"
)

// FunctionURLHandler serves invocations through a Lambda Function URL in
// RESPONSE_STREAM mode.
type FunctionURLHandler struct {
	Invoker *Invoker
	// Timeout bounds the agent turn; zero leaves the Lambda deadline in charge.
	Timeout time.Duration
}

func (h *FunctionURLHandler) Handle(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return streamErr(http.StatusBadRequest, "invalid_body", err), nil
		}
		body = decoded
	}

	p, err := DecodePayload(body)
	if err != nil {
		return streamErr(http.StatusBadRequest, "invalid_json", err), nil
	}
	inv, err := h.Invoker.Prepare(p, header(req.Headers, SessionHeader))
	if err != nil {
		return streamErr(http.StatusBadRequest, "invalid_request", err), nil
	}

	pr, pw := io.Pipe()
	go func() {
		runCtx := ctx
		if h.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, h.Timeout)
			defer cancel()
		}
		sse := &SSEWriter{W: pw}
		if err := h.Invoker.Run(runCtx, inv, sse); err != nil {
			log.WithError(err).WithField("session_id", inv.SessionID).Error("stream aborted")
			if !errors.Is(err, io.ErrClosedPipe) {
				_ = sse.WriteError(err)
			}
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	headers := map[string]string{SessionHeader: inv.SessionID}
	for k, v := range sseHeaders {
		headers[k] = v
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       pr,
	}, nil
}

func streamErr(status int, msg string, err error) *events.LambdaFunctionURLStreamingResponse {
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       strings.NewReader(errorBody(msg, err)),
	}
}

// header looks up name case-insensitively; Function URL headers arrive
// lower-cased.
func header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
