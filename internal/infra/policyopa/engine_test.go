package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"boost/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

const testPolicy = `package boost.claims

default allow = false

allow {
  count(deny) == 0
}

deny[d] {
  input.max_amount == "0"
  d := {"code": "EMPTY_CLAIM", "message": "claim amount is zero"}
}

deny[d] {
  input.claimant == "0x0000000000000000000000000000000000000000"
  d := {"code": "ZERO_CLAIMANT", "message": "claimant address is zero"}
}

result := {"allow": allow, "deny": deny}
`

func TestEngineAllowsBaseline(t *testing.T) {
	engine := newEngine(t)
	input := baseInput()

	first, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate first: %v", err)
	}
	second, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected deterministic policy evaluation")
	}
	if !first.Result.Allow {
		t.Fatal("expected allow for baseline input")
	}
	if len(first.Result.Deny) != 0 {
		t.Fatalf("expected empty deny list, got %v", first.Result.Deny)
	}
	if first.BundleHash == "" {
		t.Fatal("expected bundle hash to be set")
	}
}

func TestEngineDenies(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		mutate func(input *domain.ClaimPolicyInput)
		want   string
	}{
		{
			name: "zero amount",
			mutate: func(input *domain.ClaimPolicyInput) {
				input.MaxAmount = "0"
			},
			want: "EMPTY_CLAIM",
		},
		{
			name: "zero claimant",
			mutate: func(input *domain.ClaimPolicyInput) {
				input.Claimant = common.Address{}
			},
			want: "ZERO_CLAIMANT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := baseInput()
			tt.mutate(&input)
			out, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Result.Allow {
				t.Fatal("expected deny")
			}
			found := false
			for _, deny := range out.Result.Deny {
				if deny.Code == tt.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected deny code %s, got %v", tt.want, out.Result.Deny)
			}
		})
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	regoContent := `package boost.claims
result := {"allow": true, "deny": []} {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(regoContent), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}

	_, err := NewEngine(context.Background(), Options{BundlePath: dir, BundleID: "test"})
	if err == nil {
		t.Fatal("expected builtin to be rejected")
	}
}

func TestEngineDefaultsEmptyAmounts(t *testing.T) {
	engine := newEngine(t)
	input := baseInput()
	input.MaxAmount = ""

	out, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// An absent amount evaluates as "0" and trips the empty-claim rule.
	if out.Result.Allow {
		t.Fatal("expected deny for empty amount")
	}
	if len(out.Result.Deny) != 1 || out.Result.Deny[0].Code != "EMPTY_CLAIM" {
		t.Fatalf("unexpected deny list %v", out.Result.Deny)
	}
}

func TestEngineRejectsNonObjectDecision(t *testing.T) {
	engine := loadBundle(t, `package boost.claims

result := true
`)
	if _, err := engine.Evaluate(context.Background(), baseInput()); err == nil {
		t.Fatal("expected error for non-object decision")
	}
}

func TestEngineAcceptsStringDenies(t *testing.T) {
	engine := loadBundle(t, `package boost.claims

deny["FROZEN"] {
  input.max_amount != ""
}

result := {"allow": false, "deny": deny}
`)
	out, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(out.Result.Deny) != 1 || out.Result.Deny[0].Code != "FROZEN" {
		t.Fatalf("unexpected deny list %v", out.Result.Deny)
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return loadBundle(t, testPolicy)
}

func loadBundle(t *testing.T, policy string) *Engine {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(policy), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	engine, err := NewEngine(context.Background(), Options{BundlePath: dir, BundleID: "claims_v0"})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func baseInput() domain.ClaimPolicyInput {
	return domain.ClaimPolicyInput{
		VaultID:        common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Asset:          common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		Claimant:       common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		MaxAmount:      "1000",
		AlreadyClaimed: "0",
	}
}
