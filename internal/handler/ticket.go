package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/market"
	"github.com/sp1d5r/ticket-exchange/internal/model"
	"github.com/sp1d5r/ticket-exchange/internal/repository"
)

// TicketHandler serves per-ticket operations on the registry: reads,
// holder transfers, approvals, redemption and holder-name updates. Tickets
// are addressed by collection id + serial; the internal row id never
// appears in the API.
type TicketHandler struct {
	Tickets     *repository.TicketRepo
	Collections *repository.CollectionRepo
	Accounts    *repository.AccountRepo
}

func NewTicketHandler(t *repository.TicketRepo, col *repository.CollectionRepo, a *repository.AccountRepo) *TicketHandler {
	if t == nil || col == nil || a == nil {
		panic("nil repository passed to NewTicketHandler")
	}
	return &TicketHandler{Tickets: t, Collections: col, Accounts: a}
}

type ticketResp struct {
	CollectionID  uint64    `json:"collection_id"`
	Serial        uint32    `json:"serial"`
	HolderID      uint64    `json:"holder_id"`
	ApprovedID    uint64    `json:"approved_id"` // 0 when nobody is approved
	HolderName    string    `json:"holder_name"`
	Used          bool      `json:"used"`
	ExpiresAt     time.Time `json:"expires_at"`
	ExpiredOrUsed bool      `json:"expired_or_used"`
}

func toTicketResp(t model.Ticket) ticketResp {
	var approved uint64
	if t.ApprovedID != nil {
		approved = *t.ApprovedID
	}
	return ticketResp{
		CollectionID:  t.CollectionID,
		Serial:        t.Serial,
		HolderID:      t.HolderID,
		ApprovedID:    approved,
		HolderName:    t.HolderName,
		Used:          t.Used,
		ExpiresAt:     t.ExpiresAt,
		ExpiredOrUsed: market.ExpiredOrUsed(t.ExpiresAt, t.Used, time.Now().UTC()),
	}
}

// ticketKey parses the :id/:serial pair shared by the per-ticket routes.
func ticketKey(c echo.Context) (collectionID uint64, serial uint32, ok bool) {
	collectionID, ok = pathUint(c, "id")
	if !ok {
		return 0, 0, false
	}
	s, err := strconv.ParseUint(c.Param("serial"), 10, 32)
	if err != nil || s == 0 {
		return 0, 0, false
	}
	return collectionID, uint32(s), true
}

// Get returns one ticket. Covers the holder, approved-transferee, holder
// name and staleness accessors in a single read; out-of-range serials are
// a 404.
func (h *TicketHandler) Get(c echo.Context) error {
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	t, err := h.Tickets.Get(ctx, collectionID, serial)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, toTicketResp(t))
}

type ticketTransferReq struct {
	FromID uint64 `json:"from_id"` // 0 means the caller
	ToID   uint64 `json:"to_id"`
}

// Transfer moves a ticket between accounts. The caller must be the current
// holder or the approved transferee, and from must match the holder. A
// successful transfer clears any approval. Staleness is deliberately not
// checked here; expired tickets remain transferable at this layer.
func (h *TicketHandler) Transfer(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}
	var req ticketTransferReq
	if err := c.Bind(&req); err != nil || req.ToID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to_id required"})
	}
	if req.FromID == 0 {
		req.FromID = uid
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Tickets.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	exists, err := h.Accounts.ExistsTx(ctx, tx, req.ToID)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if !exists {
		return jsonRepoErr(c, repository.ErrInvalidRecipient)
	}

	t, err := h.Tickets.TransferTx(ctx, tx, uid, req.FromID, req.ToID, collectionID, serial)
	if err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, toTicketResp(t))
}

type approveTicketReq struct {
	ToID uint64 `json:"to_id"`
}

// Approve designates at most one account allowed to transfer the ticket on
// the holder's behalf. Approving the zero or an unknown account is
// rejected; the slot is cleared implicitly by the next transfer.
func (h *TicketHandler) Approve(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}
	var req approveTicketReq
	if err := c.Bind(&req); err != nil || req.ToID == 0 {
		return jsonRepoErr(c, repository.ErrInvalidRecipient)
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Tickets.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := h.Tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if t.HolderID != uid {
		return jsonRepoErr(c, repository.ErrUnauthorized)
	}
	exists, err := h.Accounts.ExistsTx(ctx, tx, req.ToID)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if !exists {
		return jsonRepoErr(c, repository.ErrInvalidRecipient)
	}
	if err := h.Tickets.ApproveTx(ctx, tx, t.ID, req.ToID); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{
		"collection_id": collectionID,
		"serial":        serial,
		"approved_id":   req.ToID,
	})
}

// SetUsed redeems a ticket at the venue. Redemption is the venue's act,
// so only the collection's creator may flip the flag; the holder presents
// the ticket but cannot consume it themselves. A used ticket cannot be
// redeemed twice and an expired ticket can no longer be redeemed at all.
func (h *TicketHandler) SetUsed(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Tickets.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := h.Tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	col, err := h.Collections.GetTx(ctx, tx, collectionID, false)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if col.CreatorID != uid {
		return jsonRepoErr(c, repository.ErrUnauthorized)
	}
	if t.Used {
		return jsonRepoErr(c, repository.ErrAlreadyUsed)
	}
	if time.Now().UTC().After(t.ExpiresAt) {
		return jsonRepoErr(c, repository.ErrExpired)
	}
	if err := h.Tickets.SetUsedTx(ctx, tx, t.ID); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{
		"collection_id": collectionID,
		"serial":        serial,
		"used":          true,
	})
}

type holderNameReq struct {
	HolderName string `json:"holder_name"`
}

// UpdateHolderName lets the current holder change the display name printed
// on the ticket.
func (h *TicketHandler) UpdateHolderName(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}
	var req holderNameReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.HolderName = strings.TrimSpace(req.HolderName)
	if req.HolderName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_name required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Tickets.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := h.Tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if t.HolderID != uid {
		return jsonRepoErr(c, repository.ErrUnauthorized)
	}
	if err := h.Tickets.SetHolderNameTx(ctx, tx, t.ID, req.HolderName); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{
		"collection_id": collectionID,
		"serial":        serial,
		"holder_name":   req.HolderName,
	})
}

// BalanceOf counts the tickets an account holds in one collection
// (?holder_id=, public).
func (h *TicketHandler) BalanceOf(c echo.Context) error {
	collectionID, ok := pathUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid collection id"})
	}
	holderID, err := strconv.ParseUint(c.QueryParam("holder_id"), 10, 64)
	if err != nil || holderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_id required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	n, err := h.Tickets.BalanceOf(ctx, collectionID, holderID)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"collection_id": collectionID,
		"holder_id":     holderID,
		"balance":       n,
	})
}

// Mine lists every ticket currently held by the caller.
func (h *TicketHandler) Mine(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	tickets, err := h.Tickets.ListByHolder(ctx, uid)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	out := make([]ticketResp, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketResp(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": out})
}
