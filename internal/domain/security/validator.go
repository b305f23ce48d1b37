// Package security decides request admission from origin policy, optional
// static bearer auth, and a pluggable authorization hook. The validator is a
// pure decision function over (request, config); its only side effect is
// logging.
package security

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// WildcardOrigin marks an allow-list that admits every origin.
const WildcardOrigin = "*"

// loopbackHosts are the hostnames granted the "same scheme+host, any port"
// origin relaxation. Dev servers hop ports constantly; reject-by-port would
// break every local browser client.
var loopbackHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// Request carries the attributes the authorization hook may inspect.
type Request struct {
	Method     string
	Path       string
	Origin     string
	ClientIP   string
	SessionID  string
	Credential string
	Identity   string
}

// Authorizer is the pluggable authorization hook, invoked after the origin
// and bearer checks pass. An error is an internal failure: the request is
// rejected, never allowed and never panicked on.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (bool, error)
}

// Decision is the validator's verdict for one request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Status is the HTTP status to reject with when Allowed is false.
	Status int
	// Reason is a diagnostic label. Distinct per failure mode even when
	// the externally visible status is identical.
	Reason string
	// CORSOrigin is the Access-Control-Allow-Origin value to echo back,
	// resolved regardless of the verdict so error responses stay readable
	// cross-origin. Empty when no allow-list is configured.
	CORSOrigin string
}

// Policy is the validator's configuration.
type Policy struct {
	// AllowedOrigins is the exact-match origin allow-list. The wildcard
	// entry "*" admits any origin.
	AllowedOrigins []string
	// ServerToken is the optional static bearer token. Plaintext or a
	// "sha256:<hex>" hash (hash-key command output).
	ServerToken string
	// Authorizer is the optional authorization hook.
	Authorizer Authorizer
}

// Validator applies a Policy to inbound requests.
type Validator struct {
	origins  map[string]struct{}
	ordered  []string
	wildcard bool
	token    string
	hook     Authorizer
	logger   *slog.Logger
}

// NewValidator builds a Validator from the policy.
func NewValidator(p Policy, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		origins: make(map[string]struct{}, len(p.AllowedOrigins)),
		ordered: p.AllowedOrigins,
		token:   p.ServerToken,
		hook:    p.Authorizer,
		logger:  logger,
	}
	for _, o := range p.AllowedOrigins {
		if o == WildcardOrigin {
			v.wildcard = true
		}
		v.origins[o] = struct{}{}
	}
	return v
}

// Validate produces the admission decision for one request. Preflight
// (OPTIONS) requests skip the bearer and hook checks: they only need a CORS
// origin resolution.
func (v *Validator) Validate(r *http.Request, sessionID string) Decision {
	origin := r.Header.Get("Origin")
	originOK := origin == "" || v.originAllowed(origin)
	cors := v.resolveCORSOrigin(origin, originOK)

	if r.Method == http.MethodOptions {
		return Decision{Allowed: true, CORSOrigin: cors}
	}

	if !originOK {
		v.logger.Warn("rejected origin", "origin", origin)
		return Decision{Status: http.StatusForbidden, Reason: "origin not allowed", CORSOrigin: cors}
	}

	if v.token != "" {
		if reason := v.checkBearer(r); reason != "" {
			v.logger.Warn("rejected credential", "reason", reason)
			return Decision{Status: http.StatusUnauthorized, Reason: reason, CORSOrigin: cors}
		}
	}

	if v.hook != nil {
		ok, err := v.hook.Authorize(r.Context(), Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Origin:     origin,
			ClientIP:   ClientIP(r.Context()),
			SessionID:  sessionID,
			Credential: ExtractBearer(r.Header),
		})
		if err != nil {
			v.logger.Error("authorization hook failed", "error", err)
			return Decision{Status: http.StatusInternalServerError, Reason: "authorization check failed", CORSOrigin: cors}
		}
		if !ok {
			return Decision{Status: http.StatusForbidden, Reason: "not authorized", CORSOrigin: cors}
		}
	}

	return Decision{Allowed: true, CORSOrigin: cors}
}

// checkBearer validates the static server token. The three failure modes get
// distinct reasons for diagnostics but the identical 401 status.
func (v *Validator) checkBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "missing authorization header"
	}
	cred := ExtractBearer(r.Header)
	if cred == "" {
		return "malformed authorization scheme"
	}
	match, err := verifyToken(cred, v.token)
	if err != nil || !match {
		return "invalid token"
	}
	return ""
}

// originAllowed checks the allow-list: wildcard, exact match, or the
// loopback "same scheme+host, any port" relaxation.
func (v *Validator) originAllowed(origin string) bool {
	if v.wildcard {
		return true
	}
	if _, ok := v.origins[origin]; ok {
		return true
	}
	return v.loopbackRelaxed(origin)
}

// loopbackRelaxed admits an origin whose scheme and hostname match an
// allow-list entry when the hostname is a loopback name, regardless of port.
func (v *Validator) loopbackRelaxed(origin string) bool {
	o, err := url.Parse(origin)
	if err != nil || o.Scheme == "" {
		return false
	}
	if _, ok := loopbackHosts[o.Hostname()]; !ok {
		return false
	}
	for _, entry := range v.ordered {
		e, err := url.Parse(entry)
		if err != nil {
			continue
		}
		if e.Scheme == o.Scheme && e.Hostname() == o.Hostname() {
			return true
		}
	}
	return false
}

// resolveCORSOrigin picks the Access-Control-Allow-Origin value:
// wildcard when the allow-list is wildcard, the request's own origin when
// the origin check admitted it, else the first configured entry as a
// deterministic fallback.
func (v *Validator) resolveCORSOrigin(origin string, originOK bool) string {
	if v.wildcard {
		return WildcardOrigin
	}
	if origin != "" && originOK {
		return origin
	}
	if len(v.ordered) > 0 {
		return v.ordered[0]
	}
	return ""
}
