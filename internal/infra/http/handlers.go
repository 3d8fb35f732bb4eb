package http

import (
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"boost/internal/domain"
	"boost/internal/metrics"
	"boost/internal/usecase"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createVaultRequest struct {
	Creator       string `json:"creator"`
	Asset         string `json:"asset"`
	Operator      string `json:"operator"`
	TotalAmount   string `json:"total_amount"`
	NativeFunding string `json:"native_funding,omitempty"`
	Ordinal       uint64 `json:"ordinal"`
}

type vaultResponse struct {
	ID           string         `json:"id"`
	Asset        string         `json:"asset"`
	Owner        string         `json:"owner"`
	Operator     string         `json:"operator"`
	Root         string         `json:"root"`
	Window       windowResponse `json:"window"`
	TotalClaimed string         `json:"total_claimed"`
	Balance      string         `json:"balance"`
}

type windowResponse struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type setWindowRequest struct {
	Caller   string `json:"caller"`
	Start    uint64 `json:"start"`
	Duration uint64 `json:"duration"`
}

type setRootRequest struct {
	Caller string `json:"caller"`
	Root   string `json:"root"`
}

type claimRequest struct {
	Claimant  string   `json:"claimant"`
	MaxAmount string   `json:"max_amount"`
	Proof     []string `json:"proof"`
}

type claimResponse struct {
	VaultID          string `json:"vault_id"`
	Claimant         string `json:"claimant"`
	Delta            string `json:"delta"`
	CumulativeAmount string `json:"cumulative_amount"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
}

type withdrawResponse struct {
	VaultID string `json:"vault_id"`
	Owner   string `json:"owner"`
	Amount  string `json:"amount"`
}

type claimedResponse struct {
	VaultID string `json:"vault_id"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type registryResponse struct {
	ID      string `json:"id"`
	IsVault bool   `json:"is_vault"`
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type eventResponse struct {
	Type        string  `json:"type"`
	VaultID     string  `json:"vault_id"`
	Account     string  `json:"account,omitempty"`
	Operator    string  `json:"operator,omitempty"`
	Asset       string  `json:"asset,omitempty"`
	Amount      string  `json:"amount,omitempty"`
	Root        string  `json:"root,omitempty"`
	WindowStart *uint64 `json:"window_start,omitempty"`
	WindowEnd   *uint64 `json:"window_end,omitempty"`
	At          string  `json:"at"`
}

func (s *Server) handleCreateVault(c *gin.Context) {
	var req createVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid creator address")
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid asset address")
		return
	}
	operator, ok := parseAddress(req.Operator)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid operator address")
		return
	}
	total, ok := parseAmount(req.TotalAmount)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid total amount")
		return
	}
	var funding *big.Int
	if req.NativeFunding != "" {
		funding, ok = parseAmount(req.NativeFunding)
		if !ok {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid native funding")
			return
		}
	}

	vault, err := s.factory.CreateVault(c.Request.Context(), usecase.CreateVaultRequest{
		Creator:       creator,
		Asset:         asset,
		Operator:      operator,
		TotalAmount:   total,
		NativeFunding: funding,
		Ordinal:       req.Ordinal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildVaultResponse(vault.Info()))
}

func (s *Server) handleGetVault(c *gin.Context) {
	vault, ok := s.vaultParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildVaultResponse(vault.Info()))
}

func (s *Server) handleSetWindow(c *gin.Context) {
	vault, ok := s.vaultParam(c)
	if !ok {
		return
	}
	var req setWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid caller address")
		return
	}
	if err := vault.SetWindow(c.Request.Context(), caller, req.Start, req.Duration); err != nil {
		writeError(c, err)
		return
	}
	window := vault.Window()
	c.JSON(http.StatusOK, windowResponse{Start: window.Start, End: window.End})
}

func (s *Server) handleSetRoot(c *gin.Context) {
	vault, ok := s.vaultParam(c)
	if !ok {
		return
	}
	var req setRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid caller address")
		return
	}
	root, ok := parseHash(req.Root)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ROOT", "invalid root encoding")
		return
	}
	if err := vault.SetRoot(c.Request.Context(), caller, root); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": vault.Root().Hex()})
}

func (s *Server) handleClaim(c *gin.Context) {
	id, ok := parseAddress(c.Param("id"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid vault id")
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	claimant, ok := parseAddress(req.Claimant)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid claimant address")
		return
	}
	maxAmount, ok := parseAmount(req.MaxAmount)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid max amount")
		return
	}
	proof := make([]common.Hash, 0, len(req.Proof))
	for _, node := range req.Proof {
		hash, ok := parseHash(node)
		if !ok {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_PROOF", "invalid proof encoding")
			return
		}
		proof = append(proof, hash)
	}

	if !s.enforceRateLimit(c, "claims", id, claimant) {
		return
	}

	receipt, err := s.claims.Execute(c.Request.Context(), usecase.SubmitClaimRequest{
		VaultID:   id,
		Claimant:  claimant,
		MaxAmount: maxAmount,
		Proof:     proof,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimResponse{
		VaultID:          receipt.VaultID.Hex(),
		Claimant:         receipt.Claimant.Hex(),
		Delta:            receipt.Delta.String(),
		CumulativeAmount: receipt.CumulativeAmount.String(),
	})
}

func (s *Server) handleGetClaimed(c *gin.Context) {
	vault, ok := s.vaultParam(c)
	if !ok {
		return
	}
	account, ok := parseAddress(c.Param("account"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid account address")
		return
	}
	c.JSON(http.StatusOK, claimedResponse{
		VaultID: vault.ID().Hex(),
		Account: account.Hex(),
		Amount:  vault.ClaimedOf(account).String(),
	})
}

func (s *Server) handleWithdraw(c *gin.Context) {
	vault, ok := s.vaultParam(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid caller address")
		return
	}
	amount, err := vault.WithdrawAs(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.WithdrawalsTotal.Inc()
	c.JSON(http.StatusOK, withdrawResponse{
		VaultID: vault.ID().Hex(),
		Owner:   vault.Owner().Hex(),
		Amount:  amount.String(),
	})
}

func (s *Server) handleListEvents(c *gin.Context) {
	id, ok := parseAddress(c.Param("id"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid vault id")
		return
	}
	if s.sink == nil {
		c.JSON(http.StatusOK, []eventResponse{})
		return
	}
	list := s.sink.ListByVault(id)
	out := make([]eventResponse, 0, len(list))
	for _, event := range list {
		out = append(out, buildEventResponse(event))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRegistry(c *gin.Context) {
	id, ok := parseAddress(c.Param("id"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid vault id")
		return
	}
	c.JSON(http.StatusOK, registryResponse{
		ID:      id.Hex(),
		IsVault: s.factory.IsVault(id),
	})
}

func (s *Server) handleMint(c *gin.Context) {
	asset, ok := parseAddress(c.Param("asset"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid asset address")
		return
	}
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid recipient address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid amount")
		return
	}
	s.platform.Credit(asset, to, amount)
	c.JSON(http.StatusOK, balanceResponse{
		Asset:   asset.Hex(),
		Account: to.Hex(),
		Amount:  s.platform.AdapterFor(asset, domain.FundingSpender).BalanceOf(to).String(),
	})
}

func (s *Server) handleApprove(c *gin.Context) {
	asset, ok := parseAddress(c.Param("asset"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid asset address")
		return
	}
	if domain.IsNative(asset) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_TOKEN", "native asset has no allowances")
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid owner address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid amount")
		return
	}
	s.platform.Token(asset).Approve(owner, domain.FundingSpender, amount)
	c.JSON(http.StatusOK, gin.H{
		"asset":     asset.Hex(),
		"owner":     owner.Hex(),
		"spender":   domain.FundingSpender.Hex(),
		"allowance": s.platform.Token(asset).Allowance(owner, domain.FundingSpender).String(),
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	asset, ok := parseAddress(c.Param("asset"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid asset address")
		return
	}
	account, ok := parseAddress(c.Param("account"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid account address")
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		Asset:   asset.Hex(),
		Account: account.Hex(),
		Amount:  s.platform.AdapterFor(asset, domain.FundingSpender).BalanceOf(account).String(),
	})
}

func (s *Server) vaultParam(c *gin.Context) (*usecase.Vault, bool) {
	id, ok := parseAddress(c.Param("id"))
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ADDRESS", "invalid vault id")
		return nil, false
	}
	vault, err := s.factory.Vault(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return vault, true
}

func buildVaultResponse(info domain.VaultInfo) vaultResponse {
	return vaultResponse{
		ID:       info.ID.Hex(),
		Asset:    info.Asset.Hex(),
		Owner:    info.Owner.Hex(),
		Operator: info.Operator.Hex(),
		Root:     info.Root.Hex(),
		Window: windowResponse{
			Start: info.Window.Start,
			End:   info.Window.End,
		},
		TotalClaimed: info.TotalClaimed.String(),
		Balance:      info.Balance.String(),
	}
}

func buildEventResponse(event domain.Event) eventResponse {
	out := eventResponse{
		Type:    string(event.Type),
		VaultID: event.VaultID.Hex(),
		At:      event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Account != (common.Address{}) {
		out.Account = event.Account.Hex()
	}
	if event.Operator != (common.Address{}) {
		out.Operator = event.Operator.Hex()
	}
	if event.Asset != (common.Address{}) {
		out.Asset = event.Asset.Hex()
	}
	if event.Amount != nil {
		out.Amount = event.Amount.String()
	}
	if event.Root != (common.Hash{}) {
		out.Root = event.Root.Hex()
	}
	if event.Window != nil {
		start, end := event.Window.Start, event.Window.End
		out.WindowStart = &start
		out.WindowEnd = &end
	}
	return out
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseHash(s string) (common.Hash, bool) {
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) != 2*common.HashLength {
		return common.Hash{}, false
	}
	for _, r := range trimmed {
		if !isHexDigit(r) {
			return common.Hash{}, false
		}
	}
	return common.HexToHash(s), true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrOnlyOperator),
		errors.Is(err, domain.ErrOnlyOwner),
		errors.Is(err, domain.ErrClaimDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidOperator),
		errors.Is(err, domain.ErrInvalidTotalAmount),
		errors.Is(err, domain.ErrInvalidRoot),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidTime),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrUnexpectedNative),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidProof):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrVaultExists),
		errors.Is(err, domain.ErrStartNotSet),
		errors.Is(err, domain.ErrTooEarly),
		errors.Is(err, domain.ErrTooLate),
		errors.Is(err, domain.ErrNoRoot),
		errors.Is(err, domain.ErrNoTokens),
		errors.Is(err, domain.ErrReentrancy),
		errors.Is(err, domain.ErrTransferFailed),
		errors.Is(err, domain.ErrNativeSendFailed),
		errors.Is(err, domain.ErrNativeNotAccepted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeErrorCode(c, status, domain.Code(err), err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
