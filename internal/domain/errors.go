package domain

import "errors"

// The error taxonomy is closed: every failure an operation can signal is one
// of these sentinels, and callers distinguish them with errors.Is. Failed
// operations leave no partial state behind.
var (
	// Access control.
	ErrOnlyOperator = errors.New("only operator")
	ErrOnlyOwner    = errors.New("only owner")

	// Configuration validity.
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrInvalidTotalAmount = errors.New("invalid total amount")
	ErrInvalidRoot        = errors.New("invalid root")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidTime        = errors.New("invalid time")
	ErrAlreadyActive      = errors.New("window already active")
	ErrAmountMismatch     = errors.New("amount mismatch")
	ErrUnexpectedNative   = errors.New("unexpected native funding")
	ErrVaultExists        = errors.New("vault already exists")

	// Claim-time validity.
	ErrStartNotSet   = errors.New("start not set")
	ErrTooEarly      = errors.New("too early")
	ErrTooLate       = errors.New("too late")
	ErrNoRoot        = errors.New("no root")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidProof  = errors.New("invalid proof")
	ErrClaimDenied   = errors.New("claim denied by policy")

	// Transfers.
	ErrTransferFailed    = errors.New("transfer failed")
	ErrNativeSendFailed  = errors.New("native send failed")
	ErrNativeNotAccepted = errors.New("native not accepted")

	// Resources.
	ErrNoTokens   = errors.New("no tokens")
	ErrReentrancy = errors.New("reentrant call")
	ErrNotFound   = errors.New("not found")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrOnlyOperator, "ONLY_OPERATOR"},
	{ErrOnlyOwner, "ONLY_OWNER"},
	{ErrInvalidToken, "INVALID_TOKEN"},
	{ErrInvalidOperator, "INVALID_OPERATOR"},
	{ErrInvalidTotalAmount, "INVALID_TOTAL_AMOUNT"},
	{ErrInvalidRoot, "INVALID_ROOT"},
	{ErrInvalidDuration, "INVALID_DURATION"},
	{ErrInvalidTime, "INVALID_TIME"},
	{ErrAlreadyActive, "ALREADY_ACTIVE"},
	{ErrAmountMismatch, "AMOUNT_MISMATCH"},
	{ErrUnexpectedNative, "UNEXPECTED_NATIVE"},
	{ErrVaultExists, "VAULT_EXISTS"},
	{ErrStartNotSet, "START_NOT_SET"},
	{ErrTooEarly, "TOO_EARLY"},
	{ErrTooLate, "TOO_LATE"},
	{ErrNoRoot, "NO_ROOT"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInvalidProof, "INVALID_PROOF"},
	{ErrClaimDenied, "CLAIM_DENIED"},
	{ErrTransferFailed, "TRANSFER_FAILED"},
	{ErrNativeSendFailed, "NATIVE_SEND_FAILED"},
	{ErrNativeNotAccepted, "NATIVE_NOT_ACCEPTED"},
	{ErrNoTokens, "NO_TOKENS"},
	{ErrReentrancy, "REENTRANCY"},
	{ErrNotFound, "NOT_FOUND"},
}

// Code returns the programmatic identifier for a taxonomy error, or
// "INTERNAL" for anything outside the taxonomy.
func Code(err error) string {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "INTERNAL"
}
