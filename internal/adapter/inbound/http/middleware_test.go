package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conduit-mcp/conduit/internal/ctxkey"
	"github.com/conduit-mcp/conduit/internal/domain/security"
	"github.com/google/uuid"
)

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	t.Parallel()

	var seenID string
	var seenLogger *slog.Logger
	handler := RequestIDMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value(ctxkey.RequestIDKey{}).(string)
		seenLogger = LoggerFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	echoed := rec.Header().Get("X-Request-ID")
	if echoed == "" || echoed != seenID {
		t.Errorf("echoed id %q, context id %q", echoed, seenID)
	}
	if _, err := uuid.Parse(echoed); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", echoed, err)
	}
	if seenLogger == slog.Default() {
		t.Error("context logger not enriched")
	}
}

func TestRequestIDMiddleware_PreservesClientID(t *testing.T) {
	t.Parallel()

	handler := RequestIDMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want the client's value kept", got)
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	t.Parallel()

	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Error("bare context should fall back to the default logger")
	}
}

func TestRealIPMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		remoteAddr string
		header     map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "10.0.0.5:41234",
			want:       "10.0.0.5",
		},
		{
			name:       "first forwarded entry wins",
			remoteAddr: "10.0.0.5:41234",
			header:     map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.5:41234",
			header:     map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
		},
		{
			name:       "forwarded beats real ip",
			remoteAddr: "10.0.0.5:41234",
			header: map[string]string{
				"X-Forwarded-For": "203.0.113.7",
				"X-Real-IP":       "198.51.100.2",
			},
			want: "203.0.113.7",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = security.ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tc.want {
				t.Errorf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}
