package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/conduit-mcp/conduit/pkg/mcp"
)

// streamableTransport serves the request/response style transport on /mcp.
// The session id travels in the Mcp-Session-Id header; POST dispatches a
// JSON-RPC message inline, GET opens a push stream, DELETE ends the session.
type streamableTransport struct {
	rt      *router
	streams *streamRegistry
}

func newStreamableTransport(rt *router, streams *streamRegistry) *streamableTransport {
	return &streamableTransport{rt: rt, streams: streams}
}

func (t *streamableTransport) name() string { return "streamable" }

func (t *streamableTransport) sessionID(r *http.Request) string {
	return r.Header.Get(SessionIDHeader)
}

func (t *streamableTransport) allowsCreate(r *http.Request) bool {
	return r.Method == http.MethodPost
}

func (t *streamableTransport) writeSessionID(h http.Header, id string) {
	h.Set(SessionIDHeader, id)
}

func (t *streamableTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	case http.MethodOptions:
		// resolve answers preflight after CORS resolution.
		_, _, _ = t.rt.resolve(w, r, t)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePost dispatches one JSON-RPC message to the session's bound handler.
// A request without a session id creates the session first, so the message
// (typically initialize) rides the same round trip.
func (t *streamableTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := t.rt.resolve(w, r, t)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	msg, err := mcp.Wrap(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON-RPC message")
		return
	}

	resp, err := sess.Handler.Handle(r.Context(), msg.Raw)
	if err != nil {
		if r.Context().Err() != nil {
			return // client disconnected mid-dispatch
		}
		LoggerFromContext(r.Context()).Error("upstream dispatch failed",
			"session_id", sess.ID, "error", err)
		if t.rt.metrics != nil {
			t.rt.metrics.UpstreamErrors.Inc()
		}
		writeError(w, http.StatusInternalServerError, "upstream request failed")
		return
	}

	// Notifications expect no response body.
	if msg.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

// handleGet opens a server-push stream on an existing session.
func (t *streamableTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := t.rt.resolve(w, r, t)
	if !ok {
		return
	}
	serveStream(w, r, t.streams, sess.ID)
}

// handleDelete terminates the session and closes its push streams.
func (t *streamableTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := t.rt.resolve(w, r, t)
	if !ok {
		return
	}
	if !t.rt.terminate(sess.ID, t.streams) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readBody reads a bounded request body, writing the 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, "request body too large (max 1MB)")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return nil, false
	}
	return body, true
}

// serveStream runs the SSE event loop for one session until the client
// disconnects or the session is terminated.
func serveStream(w http.ResponseWriter, r *http.Request, streams *streamRegistry, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgChan := make(chan []byte, 100)
	streams.register(sessionID, msgChan)
	defer streams.unregister(sessionID, msgChan)

	ctx := r.Context()

	_, _ = fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-msgChan:
			if !open {
				return // session terminated
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

var _ wireFormat = (*streamableTransport)(nil)
