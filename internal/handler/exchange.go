package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/config"
	"github.com/sp1d5r/ticket-exchange/internal/market"
	"github.com/sp1d5r/ticket-exchange/internal/model"
	"github.com/sp1d5r/ticket-exchange/internal/queue"
	"github.com/sp1d5r/ticket-exchange/internal/repository"
	queue_publisher "github.com/sp1d5r/ticket-exchange/internal/service"
)

// ExchangeHandler serves the resale marketplace. While a ticket is listed
// the exchange's system account holds it in custody and escrows the highest
// bid in its own wallet, so every settlement leg (ticket move, payout, fee,
// refund) composes into a single database transaction. The listing row is
// locked FOR UPDATE at the top of each mutating operation, which serializes
// bid, accept and delist per (collection, serial) key.
type ExchangeHandler struct {
	Cfg         config.Config
	Listings    *repository.ListingRepo
	Tickets     *repository.TicketRepo
	Collections *repository.CollectionRepo
	Ledger      *repository.LedgerRepo
	ExchangeID  uint64
}

func NewExchangeHandler(cfg config.Config, l *repository.ListingRepo, t *repository.TicketRepo, col *repository.CollectionRepo, led *repository.LedgerRepo, exchangeID uint64) *ExchangeHandler {
	if l == nil || t == nil || col == nil || led == nil || exchangeID == 0 {
		panic("nil dependency passed to NewExchangeHandler")
	}
	return &ExchangeHandler{Cfg: cfg, Listings: l, Tickets: t, Collections: col, Ledger: led, ExchangeID: exchangeID}
}

type listTicketReq struct {
	CollectionID uint64 `json:"collection_id"`
	Serial       uint32 `json:"serial"`
	AskPrice     uint64 `json:"ask_price"`
}

type bidReq struct {
	CollectionID  uint64 `json:"collection_id"`
	Serial        uint32 `json:"serial"`
	Amount        uint64 `json:"amount"`
	RequestedName string `json:"requested_name"`
}

type listingKeyReq struct {
	CollectionID uint64 `json:"collection_id"`
	Serial       uint32 `json:"serial"`
}

// List puts a ticket up for auction. The ticket moves into exchange
// custody and a sentinel bid at the ask price is recorded; no funds move
// until a real bidder appears. Stale tickets cannot be listed.
func (h *ExchangeHandler) List(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req listTicketReq
	if err := c.Bind(&req); err != nil || req.CollectionID == 0 || req.Serial == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "collection_id and serial required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Listings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	t, err := h.Tickets.GetTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if market.ExpiredOrUsed(t.ExpiresAt, t.Used, time.Now().UTC()) {
		return jsonRepoErr(c, repository.ErrExpired)
	}
	exists, err := h.Listings.ExistsActiveTx(ctx, tx, req.CollectionID, req.Serial)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if exists {
		return jsonRepoErr(c, repository.ErrAlreadyListed)
	}

	// Custody move; holder/approval guards come from the registry layer.
	originalOwner := t.HolderID
	if _, err := h.Tickets.TransferTx(ctx, tx, uid, t.HolderID, h.ExchangeID, req.CollectionID, req.Serial); err != nil {
		return jsonRepoErr(c, err)
	}
	listingID, err := h.Listings.CreateTx(ctx, tx, req.CollectionID, req.Serial, req.AskPrice, originalOwner)
	if err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusCreated, echo.Map{
		"listing_id":    listingID,
		"collection_id": req.CollectionID,
		"serial":        req.Serial,
		"ask_price":     req.AskPrice,
	})
}

// Bid escrows a new highest bid. The offer must strictly exceed the
// current amount (the sentinel floor included), the listed ticket must
// still be fresh and sellers cannot bid on their own listings. Funds are
// pulled through the caller's allowance for the exchange; the superseded
// bidder, if real, is refunded inside the same transaction.
func (h *ExchangeHandler) Bid(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req bidReq
	if err := c.Bind(&req); err != nil || req.CollectionID == 0 || req.Serial == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "collection_id and serial required"})
	}
	req.RequestedName = strings.TrimSpace(req.RequestedName)
	if req.RequestedName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "requested_name required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Listings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := h.Listings.ActiveTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	t, err := h.Tickets.GetTx(ctx, tx, req.CollectionID, req.Serial, false)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if market.ExpiredOrUsed(t.ExpiresAt, t.Used, time.Now().UTC()) {
		return jsonRepoErr(c, repository.ErrExpired)
	}
	if uid == listing.OriginalOwnerID {
		return jsonRepoErr(c, repository.ErrSelfBid)
	}
	if !market.OutbidsCurrent(bid.Amount, req.Amount) {
		return jsonRepoErr(c, repository.ErrBidTooLow)
	}

	// Escrow the new bid, then release the superseded one. Both legs are
	// inside this transaction, so a failed refund aborts the bid.
	if err := h.Ledger.TransferFromTx(ctx, tx, h.ExchangeID, uid, h.ExchangeID, req.Amount); err != nil {
		return jsonRepoErr(c, err)
	}
	if bid.BidderID != nil {
		if err := h.Ledger.TransferTx(ctx, tx, h.ExchangeID, *bid.BidderID, bid.Amount); err != nil {
			return jsonRepoErr(c, err)
		}
	}
	if err := h.Listings.ReplaceBidTx(ctx, tx, listing.ID, req.Amount, uid, req.RequestedName); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{
		"listing_id":    listing.ID,
		"collection_id": req.CollectionID,
		"serial":        req.Serial,
		"amount":        req.Amount,
		"bidder_id":     uid,
	})
}

// HighestBid reports the current highest bid for an active listing. The
// sentinel floor reads as bidder 0 at the ask price. Public.
func (h *ExchangeHandler) HighestBid(c echo.Context) error {
	collectionID, serial, ok := ticketKey(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket key"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	listing, bid, err := h.Listings.Active(ctx, collectionID, serial)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	var bidder uint64
	if bid.BidderID != nil {
		bidder = *bid.BidderID
	}
	return c.JSON(http.StatusOK, echo.Map{
		"collection_id": collectionID,
		"serial":        serial,
		"ask_price":     listing.AskPrice,
		"amount":        bid.Amount,
		"bidder_id":     bidder,
	})
}

// Accept settles a listing in the seller's favor. With a real bidder the
// escrowed amount splits into creator fee and seller payout, the ticket is
// renamed to the bidder's requested name and handed over; with only the
// sentinel floor the ticket simply returns to the seller, funds untouched.
// The no-bidder path works on expired tickets too, delisting does not.
func (h *ExchangeHandler) Accept(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req listingKeyReq
	if err := c.Bind(&req); err != nil || req.CollectionID == 0 || req.Serial == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "collection_id and serial required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Listings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := h.Listings.ActiveTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if uid != listing.OriginalOwnerID {
		return jsonRepoErr(c, repository.ErrUnauthorized)
	}

	if bid.BidderID == nil {
		// No bidder: return the ticket and close. No funds ever moved.
		if _, err := h.Tickets.TransferTx(ctx, tx, h.ExchangeID, h.ExchangeID, listing.OriginalOwnerID, req.CollectionID, req.Serial); err != nil {
			return jsonRepoErr(c, err)
		}
		if err := h.Listings.CloseTx(ctx, tx, listing.ID); err != nil {
			return jsonRepoErr(c, err)
		}
		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
		}
		committed = true
		h.publishSettled(listing, 0, 0, 0, 0)
		return c.JSON(http.StatusOK, echo.Map{
			"listing_id":    listing.ID,
			"collection_id": req.CollectionID,
			"serial":        req.Serial,
			"settled":       false,
		})
	}

	col, err := h.Collections.GetTx(ctx, tx, listing.CollectionID, false)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	fee, payout := market.FeeSplit(bid.Amount, h.Cfg.FeePercent)

	t, err := h.Tickets.GetTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if err := h.Tickets.SetHolderNameTx(ctx, tx, t.ID, bid.RequestedName); err != nil {
		return jsonRepoErr(c, err)
	}
	if _, err := h.Tickets.TransferTx(ctx, tx, h.ExchangeID, h.ExchangeID, *bid.BidderID, req.CollectionID, req.Serial); err != nil {
		return jsonRepoErr(c, err)
	}
	if err := h.Ledger.TransferTx(ctx, tx, h.ExchangeID, listing.OriginalOwnerID, payout); err != nil {
		return jsonRepoErr(c, err)
	}
	if err := h.Ledger.TransferTx(ctx, tx, h.ExchangeID, col.CreatorID, fee); err != nil {
		return jsonRepoErr(c, err)
	}
	if err := h.Listings.CloseTx(ctx, tx, listing.ID); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	h.publishSettled(listing, *bid.BidderID, bid.Amount, fee, payout)
	return c.JSON(http.StatusOK, echo.Map{
		"listing_id":    listing.ID,
		"collection_id": req.CollectionID,
		"serial":        req.Serial,
		"settled":       true,
		"buyer_id":      *bid.BidderID,
		"amount":        bid.Amount,
		"fee":           fee,
		"payout":        payout,
	})
}

// Delist reclaims a listed ticket: it returns to the seller and any real
// bidder is refunded in full. Unlike the no-bidder accept path, a stale
// ticket cannot be reclaimed this way.
func (h *ExchangeHandler) Delist(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req listingKeyReq
	if err := c.Bind(&req); err != nil || req.CollectionID == 0 || req.Serial == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "collection_id and serial required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Listings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := h.Listings.ActiveTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if uid != listing.OriginalOwnerID {
		return jsonRepoErr(c, repository.ErrUnauthorized)
	}
	t, err := h.Tickets.GetTx(ctx, tx, req.CollectionID, req.Serial, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if market.ExpiredOrUsed(t.ExpiresAt, t.Used, time.Now().UTC()) {
		return jsonRepoErr(c, repository.ErrExpired)
	}

	if _, err := h.Tickets.TransferTx(ctx, tx, h.ExchangeID, h.ExchangeID, listing.OriginalOwnerID, req.CollectionID, req.Serial); err != nil {
		return jsonRepoErr(c, err)
	}
	if bid.BidderID != nil {
		if err := h.Ledger.TransferTx(ctx, tx, h.ExchangeID, *bid.BidderID, bid.Amount); err != nil {
			return jsonRepoErr(c, err)
		}
	}
	if err := h.Listings.CloseTx(ctx, tx, listing.ID); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	h.publishSettled(listing, 0, 0, 0, 0)
	return c.JSON(http.StatusOK, echo.Map{
		"listing_id":    listing.ID,
		"collection_id": req.CollectionID,
		"serial":        req.Serial,
		"delisted":      true,
	})
}

// publishSettled emits the trade.settled event after commit. A buyer of 0
// marks a reclaim (delist or no-bidder accept). Best effort.
func (h *ExchangeHandler) publishSettled(listing model.Listing, buyerID, amount, fee, payout uint64) {
	ev := queue.TradeSettledEvent{
		ListingID:    listing.ID,
		CollectionID: listing.CollectionID,
		Serial:       listing.Serial,
		SellerID:     listing.OriginalOwnerID,
		BuyerID:      buyerID,
		Amount:       amount,
		Fee:          fee,
		Payout:       payout,
		SettledAt:    time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := queue_publisher.PublishTradeSettled(ctx, ev); err != nil {
		log.Printf("publish trade.settled failed: %v", err)
	}
}
