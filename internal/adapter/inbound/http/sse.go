package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/conduit-mcp/conduit/pkg/mcp"
)

// sseTransport serves the push-stream style transport on /sse. The session
// id travels in the sessionId query parameter; responses to dispatched
// messages are fanned out to the session's open streams rather than
// returned inline.
type sseTransport struct {
	rt      *router
	streams *streamRegistry
}

func newSSETransport(rt *router, streams *streamRegistry) *sseTransport {
	return &sseTransport{rt: rt, streams: streams}
}

func (t *sseTransport) name() string { return "sse" }

func (t *sseTransport) sessionID(r *http.Request) string {
	return r.URL.Query().Get(SessionIDQueryParam)
}

func (t *sseTransport) allowsCreate(r *http.Request) bool {
	return r.Method == http.MethodPost
}

// writeSessionID echoes the id in the response header; a query parameter has
// no outbound equivalent.
func (t *sseTransport) writeSessionID(h http.Header, id string) {
	h.Set(SessionIDHeader, id)
}

// createdBody is the JSON body returned when a bare POST opens a session.
type createdBody struct {
	SessionID string `json:"sessionId"`
}

func (t *sseTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	case http.MethodOptions:
		_, _, _ = t.rt.resolve(w, r, t)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePost creates a session (no id) or dispatches a message (id present).
// A bare create with an empty body returns 201 with the id; a create that
// carries a message dispatches it and returns the response inline so the
// client learns the id and the result in one round trip. Dispatches against
// an existing session return 202 and fan the response out to the session's
// open streams.
func (t *sseTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	sess, created, ok := t.rt.resolve(w, r, t)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, "request body too large (max 1MB)")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if len(body) == 0 {
		if created {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(createdBody{SessionID: sess.ID})
			return
		}
		writeError(w, http.StatusBadRequest, "empty request body")
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
			return
		}
		LoggerFromContext(r.Context()).Error("upstream dispatch failed",
			"session_id", sess.ID, "error", err)
		if t.rt.metrics != nil {
			t.rt.metrics.UpstreamErrors.Inc()
		}
		writeError(w, http.StatusInternalServerError, "upstream request failed")
		return
	}

	if created {
		if msg.IsNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
		return
	}

	if !msg.IsNotification() && len(resp) > 0 {
		t.streams.publish(sess.ID, resp)
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGet opens the push stream for an existing session.
func (t *sseTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := t.rt.resolve(w, r, t)
	if !ok {
		return
	}
	serveStream(w, r, t.streams, sess.ID)
}

// handleDelete terminates the session and closes its push streams.
func (t *sseTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
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

var _ wireFormat = (*sseTransport)(nil)
