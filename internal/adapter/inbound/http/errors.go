package http

import (
	"encoding/json"
	"net/http"

	"github.com/conduit-mcp/conduit/internal/domain/security"
)

// errorBody is the envelope written on every rejected request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// errorLabels maps rejection statuses to stable machine-readable labels.
var errorLabels = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

// writeError writes the standard error envelope. CORS headers must already be
// set on w so browser clients can read the body cross-origin.
func writeError(w http.ResponseWriter, status int, message string) {
	label, ok := errorLabels[status]
	if !ok {
		label = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: label, Message: message})
}

// applyCORS sets the cross-origin headers on a response. Every response
// carries these, success and error alike; resolvedOrigin comes from the
// security validator and is empty only when no allow-list is configured.
func applyCORS(h http.Header, resolvedOrigin string) {
	if resolvedOrigin == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", resolvedOrigin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, Last-Event-ID")
	h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id, X-Request-ID")
	h.Set("Access-Control-Max-Age", "86400")
	if resolvedOrigin != security.WildcardOrigin {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
