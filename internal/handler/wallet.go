package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/repository"
)

// WalletHandler serves the value-ledger endpoints: balances, deposits,
// allowances and direct transfers. Allowances default to the exchange
// account, which is the only spender the service itself ever exercises
// (primary-sale purchases and bid escrow).
type WalletHandler struct {
	Ledger     *repository.LedgerRepo
	Accounts   *repository.AccountRepo
	ExchangeID uint64
}

func NewWalletHandler(l *repository.LedgerRepo, a *repository.AccountRepo, exchangeID uint64) *WalletHandler {
	if l == nil || a == nil || exchangeID == 0 {
		panic("nil dependency passed to NewWalletHandler")
	}
	return &WalletHandler{Ledger: l, Accounts: a, ExchangeID: exchangeID}
}

type depositReq struct {
	Amount uint64 `json:"amount"`
}
type approveReq struct {
	SpenderID uint64 `json:"spender_id"` // 0 means the exchange account
	Amount    uint64 `json:"amount"`
}
type walletTransferReq struct {
	ToID   uint64 `json:"to_id"`
	Amount uint64 `json:"amount"`
}

// Balance returns the caller's wallet balance.
func (h *WalletHandler) Balance(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	bal, err := h.Ledger.Balance(ctx, uid)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account_id": uid, "balance": bal})
}

// Deposit credits the caller's wallet. This stands in for value arriving
// from outside the system; production deployments would gate it behind a
// payment processor callback.
func (h *WalletHandler) Deposit(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req depositReq
	if err := c.Bind(&req); err != nil || req.Amount == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "positive amount required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	if err := h.Ledger.Deposit(ctx, uid, req.Amount); err != nil {
		return jsonRepoErr(c, err)
	}
	bal, err := h.Ledger.Balance(ctx, uid)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account_id": uid, "balance": bal})
}

// Approve sets (not increments) the caller's allowance for a spender. The
// target must be an existing account; approving the zero id is rejected,
// clearing happens by approving amount 0 for a real spender.
func (h *WalletHandler) Approve(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req approveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	spender := req.SpenderID
	if spender == 0 {
		spender = h.ExchangeID
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	if _, err := h.Accounts.GetByID(ctx, spender); err != nil {
		if err == repository.ErrAccountNotFound {
			return jsonRepoErr(c, repository.ErrInvalidRecipient)
		}
		return jsonRepoErr(c, err)
	}
	if err := h.Ledger.Approve(ctx, uid, spender, req.Amount); err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"owner_id":   uid,
		"spender_id": spender,
		"amount":     req.Amount,
	})
}

// Allowance reads the caller's remaining allowance for a spender
// (?spender_id=, defaulting to the exchange account).
func (h *WalletHandler) Allowance(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	spender := h.ExchangeID
	if s := c.QueryParam("spender_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid spender_id"})
		}
		spender = n
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	amount, err := h.Ledger.Allowance(ctx, uid, spender)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"owner_id":   uid,
		"spender_id": spender,
		"amount":     amount,
	})
}

// Transfer moves value from the caller's wallet to another account.
func (h *WalletHandler) Transfer(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req walletTransferReq
	if err := c.Bind(&req); err != nil || req.ToID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to_id required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	if _, err := h.Accounts.GetByID(ctx, req.ToID); err != nil {
		if err == repository.ErrAccountNotFound {
			return jsonRepoErr(c, repository.ErrInvalidRecipient)
		}
		return jsonRepoErr(c, err)
	}
	if err := h.Ledger.Transfer(ctx, uid, req.ToID, req.Amount); err != nil {
		return jsonRepoErr(c, err)
	}
	bal, err := h.Ledger.Balance(ctx, uid)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"account_id": uid, "balance": bal})
}
