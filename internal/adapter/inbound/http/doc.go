// Package http is the inbound HTTP adapter. It exposes two wire transports
// that share one admission flow (security validation, rate-limited session
// creation, credential binding, dispatch): a request/response transport on
// /mcp where the session id travels in the Mcp-Session-Id header, and a
// push-stream transport on /sse where it travels in the sessionId query
// parameter. /health and /metrics bypass the admission flow.
package http
