// Package cel provides a CEL-based authorization hook for the security
// validator.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/conduit-mcp/conduit/internal/domain/apikey"
	"github.com/conduit-mcp/conduit/internal/domain/security"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Authorizer evaluates a compiled CEL expression against request attributes.
// When a keyring is configured, the presented credential is resolved to an
// identity name first and exposed to the expression as `identity`.
type Authorizer struct {
	prg     cel.Program
	keyring *apikey.Keyring
}

// newEnv creates the CEL environment with the request attribute variables.
func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("method", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("client_ip", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("identity", cel.StringType),
		cel.Variable("authenticated", cel.BoolType),
	)
}

// NewAuthorizer compiles an expression into an Authorizer. The keyring may
// be nil when no API keys are configured.
func NewAuthorizer(expression string, keyring *apikey.Keyring) (*Authorizer, error) {
	if err := ValidateExpression(expression); err != nil {
		return nil, err
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &Authorizer{prg: prg, keyring: keyring}, nil
}

// Authorize evaluates the expression for one request. A non-boolean result
// or an evaluation failure is an error (the validator rejects, it never
// crashes). When a keyring is configured, an unresolvable credential denies
// without error.
func (a *Authorizer) Authorize(ctx context.Context, req security.Request) (bool, error) {
	identity := ""
	authenticated := false
	if !a.keyring.Empty() {
		var ok bool
		identity, ok = a.keyring.Resolve(req.Credential)
		if !ok && req.Credential != "" {
			return false, nil
		}
		authenticated = ok
	}

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	out, _, err := a.prg.ContextEval(evalCtx, map[string]interface{}{
		"method":        req.Method,
		"path":          req.Path,
		"origin":        req.Origin,
		"client_ip":     req.ClientIP,
		"session_id":    req.SessionID,
		"identity":      identity,
		"authenticated": authenticated,
	})
	if err != nil {
		return false, fmt.Errorf("authorization evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("authorization expression returned %T, want bool", out.Value())
	}
	return allowed, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that an expression is syntactically valid and
// within the safety limits (length, nesting depth).
func ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	return validateNesting(expr)
}

// Compile-time interface verification.
var _ security.Authorizer = (*Authorizer)(nil)
