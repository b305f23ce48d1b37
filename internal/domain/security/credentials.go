package security

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/conduit-mcp/conduit/internal/ctxkey"
	"github.com/conduit-mcp/conduit/internal/domain/apikey"
)

// bearerPrefix is the only accepted Authorization scheme.
const bearerPrefix = "Bearer "

// ExtractBearer pulls the bearer credential from the Authorization header.
// Stateless, pure. Returns "" when the header is absent or uses another
// scheme.
func ExtractBearer(h http.Header) string {
	auth := h.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(auth, bearerPrefix)
}

// verifyToken compares a presented credential against the configured server
// token. Hashed tokens ("sha256:..." or Argon2id PHC) go through the apikey
// verifier; anything else is treated as plaintext and compared in constant
// time.
func verifyToken(presented, configured string) (bool, error) {
	if apikey.DetectHashType(configured) != "unknown" {
		return apikey.Verify(presented, configured)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1, nil
}

// ClientIP returns the resolved client IP stored in context by the transport
// middleware, or "" when none was recorded.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxkey.ClientIPKey{}).(string)
	return ip
}
