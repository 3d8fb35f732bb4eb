package policyopa

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"boost/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// DefaultQuery is the decision document every claim bundle must export.
const DefaultQuery = "data.boost.claims.result"

// Engine gates claim submissions on an operator-supplied rego bundle. The
// bundle is compiled once at startup against a restricted builtin set and
// pinned by digest; per-claim evaluation only runs the prepared query.
type Engine struct {
	prepared rego.PreparedEvalQuery
	bundleID string
	digest   string
}

type Options struct {
	BundlePath string
	BundleID   string
	// Query overrides DefaultQuery for bundles that export their decision
	// under a different document.
	Query string
}

func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.BundlePath == "" {
		return nil, errors.New("policy bundle path is required")
	}
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	digest, err := ComputeBundleHashFromPath(opts.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("digest policy bundle: %w", err)
	}

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	prepared, err := rego.New(
		rego.Query(opts.Query),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{opts.BundlePath}, nil),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy bundle: %w", err)
	}
	if banned := forbiddenBuiltins(compiler); len(banned) > 0 {
		return nil, fmt.Errorf("policy bundle calls forbidden builtins: %s", strings.Join(banned, ", "))
	}

	return &Engine{prepared: prepared, bundleID: opts.BundleID, digest: digest}, nil
}

// Digest returns the bundle content digest pinned at load time.
func (e *Engine) Digest() string {
	return e.digest
}

func (e *Engine) Evaluate(ctx context.Context, input domain.ClaimPolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("no policy engine configured")
	}
	results, err := e.prepared.Eval(ctx, rego.EvalInput(claimDocument(input)))
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("policy bundle produced no decision")
	}
	result, err := parseDecision(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	return domain.PolicyEvaluation{
		BundleID:   e.bundleID,
		BundleHash: e.digest,
		Result:     result,
	}, nil
}

// claimDocument renders the input the way bundles see it: lowercase hex
// addresses and decimal-string amounts, with absent amounts read as zero.
func claimDocument(in domain.ClaimPolicyInput) map[string]any {
	maxAmount := in.MaxAmount
	if maxAmount == "" {
		maxAmount = "0"
	}
	already := in.AlreadyClaimed
	if already == "" {
		already = "0"
	}
	return map[string]any{
		"vault_id":        strings.ToLower(in.VaultID.Hex()),
		"asset":           strings.ToLower(in.Asset.Hex()),
		"claimant":        strings.ToLower(in.Claimant.Hex()),
		"max_amount":      maxAmount,
		"already_claimed": already,
	}
}

// parseDecision reads {"allow": bool, "deny": [...]} out of the raw eval
// value. Deny entries may be code/message objects or bare code strings;
// anything else fails the evaluation rather than passing silently.
func parseDecision(value any) (domain.PolicyResult, error) {
	doc, ok := value.(map[string]any)
	if !ok {
		return domain.PolicyResult{}, fmt.Errorf("policy decision is %T, want object", value)
	}
	allow, ok := doc["allow"].(bool)
	if !ok {
		return domain.PolicyResult{}, errors.New("policy decision is missing the allow verdict")
	}
	result := domain.PolicyResult{Allow: allow}
	rawDeny, ok := doc["deny"]
	if !ok {
		return result, nil
	}
	entries, ok := rawDeny.([]any)
	if !ok {
		return domain.PolicyResult{}, fmt.Errorf("policy deny list is %T, want array", rawDeny)
	}
	for _, entry := range entries {
		switch d := entry.(type) {
		case string:
			result.Deny = append(result.Deny, domain.PolicyDeny{Code: d})
		case map[string]any:
			code, _ := d["code"].(string)
			message, _ := d["message"].(string)
			result.Deny = append(result.Deny, domain.PolicyDeny{Code: code, Message: message})
		default:
			return domain.PolicyResult{}, fmt.Errorf("policy deny entry is %T, want object or string", entry)
		}
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code != result.Deny[j].Code {
			return result.Deny[i].Code < result.Deny[j].Code
		}
		return result.Deny[i].Message < result.Deny[j].Message
	})
	return result, nil
}

// forbiddenBuiltins reports builtins referenced by the compiled modules that
// are outside the allowlist. Compiling against filtered capabilities already
// rejects most of them; the walk catches references that slipped through.
func forbiddenBuiltins(compiler *ast.Compiler) []string {
	seen := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, known := ast.BuiltinMap[name]; !known {
				return false
			}
			if _, allowed := allowedBuiltins[name]; !allowed {
				seen[name] = struct{}{}
			}
			return false
		})
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
