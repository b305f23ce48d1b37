package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
	"github.com/conduit-mcp/conduit/internal/domain/security"
	"github.com/conduit-mcp/conduit/internal/domain/session"
)

// SessionIDHeader carries the session id on the streamable transport.
const SessionIDHeader = "Mcp-Session-Id"

// SessionIDQueryParam carries the session id on the push-stream transport.
const SessionIDQueryParam = "sessionId"

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// capacityRetryAfter is the Retry-After hint on 503 responses.
const capacityRetryAfter = "60"

// Binder opens the upstream handler that a newly created session binds to.
// *upstream.Binder satisfies this.
type Binder interface {
	Bind(ctx context.Context) (session.Handler, error)
}

// wireFormat is what actually differs between the transports: where the
// session id travels and which request kinds may create a session. The
// admission flow itself is shared.
type wireFormat interface {
	name() string
	sessionID(r *http.Request) string
	allowsCreate(r *http.Request) bool
	writeSessionID(h http.Header, id string)
}

// routerConfig holds the admission tuning shared by all transports.
type routerConfig struct {
	Limit       int
	Window      time.Duration
	EvictOnFull bool
}

// router implements the admission flow shared by every transport: security
// validation, preflight, rate-limited session creation, credential binding
// checks, and the status code mapping on each rejection.
type router struct {
	validator *security.Validator
	limiter   ratelimit.Limiter
	sessions  *session.Manager
	binder    Binder
	cfg       routerConfig
	metrics   *Metrics
	logger    *slog.Logger
}

func newRouter(
	validator *security.Validator,
	limiter ratelimit.Limiter,
	sessions *session.Manager,
	binder Binder,
	cfg routerConfig,
	metrics *Metrics,
	logger *slog.Logger,
) *router {
	if logger == nil {
		logger = slog.Default()
	}
	return &router{
		validator: validator,
		limiter:   limiter,
		sessions:  sessions,
		binder:    binder,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// resolve runs the shared admission flow and returns the session the request
// operates on. When ok is false the response has already been written.
// created reports whether this request opened a new session.
//
// Every response, rejection included, carries the CORS headers resolved by
// the validator so browser clients can read error bodies cross-origin.
func (rt *router) resolve(w http.ResponseWriter, r *http.Request, wire wireFormat) (sess *session.Session, created, ok bool) {
	sid := wire.sessionID(r)

	decision := rt.validator.Validate(r, sid)
	applyCORS(w.Header(), decision.CORSOrigin)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return nil, false, false
	}

	if !decision.Allowed {
		writeError(w, decision.Status, decision.Reason)
		return nil, false, false
	}

	if sid == "" {
		if !wire.allowsCreate(r) {
			writeError(w, http.StatusBadRequest, "missing session id")
			return nil, false, false
		}
		sess, ok = rt.create(w, r, wire)
		return sess, ok, ok
	}

	sess, found := rt.sessions.Get(sid)
	if !found {
		writeError(w, http.StatusNotFound, "unknown session")
		return nil, false, false
	}

	// Sessions are single-identity for their lifetime: the credential
	// presented now must be the one the session was created with.
	if security.ExtractBearer(r.Header) != sess.Credential {
		rt.logger.Warn("session credential mismatch", "session_id", sid, "transport", wire.name())
		writeError(w, http.StatusForbidden, "session credential mismatch")
		return nil, false, false
	}

	wire.writeSessionID(w.Header(), sid)
	return sess, false, true
}

// create admits a new session: credential check, rate limit by hashed
// credential, upstream bind, then registry insert. On capacity failure the
// freshly bound handler is closed again and the caller gets a retry hint.
func (rt *router) create(w http.ResponseWriter, r *http.Request, wire wireFormat) (*session.Session, bool) {
	logger := LoggerFromContext(r.Context())

	cred := security.ExtractBearer(r.Header)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return nil, false
	}

	result, err := rt.limiter.Check(r.Context(), ratelimit.IdentityKey(cred), rt.cfg.Limit, rt.cfg.Window)
	if err != nil {
		// Fail closed: a broken limiter store must never admit traffic.
		logger.Error("rate limit check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rate limit check failed")
		return nil, false
	}
	setRateLimitHeaders(w.Header(), result)
	if !result.Allowed {
		if rt.metrics != nil {
			rt.metrics.RateLimitRejections.Inc()
		}
		w.Header().Set("Retry-After", retryAfterSeconds(result.ResetAfter))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, false
	}

	handler, err := rt.binder.Bind(r.Context())
	if err != nil {
		logger.Error("upstream bind failed", "error", err)
		if rt.metrics != nil {
			rt.metrics.UpstreamErrors.Inc()
		}
		writeError(w, http.StatusInternalServerError, "failed to bind upstream handler")
		return nil, false
	}

	sess := &session.Session{
		ID:         session.GenerateID(),
		Credential: cred,
		Handler:    handler,
	}
	if !rt.sessions.Create(sess.ID, sess, rt.cfg.EvictOnFull) {
		_ = handler.Close()
		if rt.metrics != nil {
			rt.metrics.CapacityRejections.Inc()
		}
		w.Header().Set("Retry-After", capacityRetryAfter)
		writeError(w, http.StatusServiceUnavailable, "session capacity reached")
		return nil, false
	}

	if rt.metrics != nil {
		rt.metrics.SessionsCreated.Inc()
	}
	logger.Info("session created", "session_id", sess.ID, "transport", wire.name())
	wire.writeSessionID(w.Header(), sess.ID)
	return sess, true
}

// terminate removes a session and closes its push streams. Returns false for
// an unknown id.
func (rt *router) terminate(sid string, streams *streamRegistry) bool {
	streams.terminate(sid)
	if !rt.sessions.Delete(sid) {
		return false
	}
	if rt.metrics != nil {
		rt.metrics.SessionsTerminated.Inc()
	}
	return true
}

// setRateLimitHeaders writes the standard X-RateLimit-* trio.
func setRateLimitHeaders(h http.Header, res ratelimit.Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// retryAfterSeconds renders a Retry-After value, rounding up so clients never
// retry early. Minimum one second.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
