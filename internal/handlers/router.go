package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// NewRouter exposes the container runtime contract: POST /invocations and
// GET /ping.
func NewRouter(iv *Invoker) *mux.Router {
	started := time.Now().Unix()
	r := mux.NewRouter()
	r.HandleFunc("/ping", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "Healthy", "time_of_last_update": started})
	}).Methods(http.MethodGet)
	r.HandleFunc("/invocations", invocations(iv)).Methods(http.MethodPost)
	return r
}

func invocations(iv *Invoker) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err)
			return
		}
		p, err := DecodePayload(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err)
			return
		}
		inv, err := iv.Prepare(p, req.Header.Get(SessionHeader))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err)
			return
		}

		lw := &lazySSE{w: w, sessionID: inv.SessionID}
		if err := iv.Run(req.Context(), inv, lw); err != nil {
			if !lw.started {
				status := http.StatusInternalServerError
				if errors.Is(err, ErrBadRequest) {
					status = http.StatusBadRequest
				}
				writeError(w, status, "invocation_failed", err)
				return
			}
			if werr := lw.sse.WriteError(err); werr != nil {
				log.WithError(werr).Warn("write error event")
			}
			return
		}
		if !lw.started {
			lw.start()
		}
	}
}

// lazySSE delays the SSE status line until the first chunk so early failures
// can still be reported with a proper status code.
type lazySSE struct {
	w         http.ResponseWriter
	sessionID string
	started   bool
	sse       *SSEWriter
}

func (l *lazySSE) start() {
	for k, v := range sseHeaders {
		l.w.Header().Set(k, v)
	}
	l.w.Header().Set(SessionHeader, l.sessionID)
	l.w.WriteHeader(http.StatusOK)
	l.sse = &SSEWriter{W: l.w}
	l.started = true
}

func (l *lazySSE) WriteChunk(chunk string) error {
	if !l.started {
		l.start()
	}
	return l.sse.WriteChunk(chunk)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, errorBody(msg, err))
}
