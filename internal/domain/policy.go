package domain

import "github.com/ethereum/go-ethereum/common"

// ClaimPolicyInput is the document handed to the policy engine before a
// claim is allowed through to proof verification.
type ClaimPolicyInput struct {
	VaultID        common.Address `json:"vault_id"`
	Asset          common.Address `json:"asset"`
	Claimant       common.Address `json:"claimant"`
	MaxAmount      string         `json:"max_amount"`
	AlreadyClaimed string         `json:"already_claimed"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

// DenyCodes lists the deny codes in the engine's normalized order.
func (r PolicyResult) DenyCodes() []string {
	codes := make([]string, 0, len(r.Deny))
	for _, deny := range r.Deny {
		codes = append(codes, deny.Code)
	}
	return codes
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
