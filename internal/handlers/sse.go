package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SSEWriter frames each chunk as a server-sent event: data: <json>\n\n.
type SSEWriter struct {
	W io.Writer
}

func (s *SSEWriter) WriteChunk(chunk string) error {
	b, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.W, "data: %s\n\n", b); err != nil {
		return err
	}
	if f, ok := s.W.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// WriteError sends a terminal error event after streaming has started.
func (s *SSEWriter) WriteError(err error) error {
	b, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})
	_, werr := fmt.Fprintf(s.W, "data: %s\n\n", b)
	return werr
}

var sseHeaders = map[string]string{
	"Content-Type":  "text/event-stream",
	"Cache-Control": "no-cache",
}
