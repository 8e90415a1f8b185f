package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/config"
	"github.com/sp1d5r/ticket-exchange/internal/model"
	"github.com/sp1d5r/ticket-exchange/internal/queue"
	"github.com/sp1d5r/ticket-exchange/internal/repository"
	queue_publisher "github.com/sp1d5r/ticket-exchange/internal/service"
)

// CollectionHandler serves collection management, public browsing and the
// primary sale. A collection is one ticket registry: a fixed-capacity run
// of serially numbered tickets for a single event, sold at a fixed price.
type CollectionHandler struct {
	Cfg         config.Config
	Collections *repository.CollectionRepo
	Tickets     *repository.TicketRepo
	Listings    *repository.ListingRepo
	Ledger      *repository.LedgerRepo
	ExchangeID  uint64
}

func NewCollectionHandler(cfg config.Config, col *repository.CollectionRepo, t *repository.TicketRepo, l *repository.ListingRepo, led *repository.LedgerRepo, exchangeID uint64) *CollectionHandler {
	if col == nil || t == nil || l == nil || led == nil || exchangeID == 0 {
		panic("nil dependency passed to NewCollectionHandler")
	}
	return &CollectionHandler{Cfg: cfg, Collections: col, Tickets: t, Listings: l, Ledger: led, ExchangeID: exchangeID}
}

type createCollectionReq struct {
	EventName  string `json:"event_name"`
	Price      uint64 `json:"price"`
	MaxTickets uint32 `json:"max_tickets"`
}

type purchaseReq struct {
	HolderName string `json:"holder_name"`
}

type collectionResp struct {
	ID          uint64 `json:"id"`
	EventName   string `json:"event_name"`
	Price       uint64 `json:"price"`
	MaxTickets  uint32 `json:"max_tickets"`
	MintedCount uint32 `json:"minted_count"`
	CreatorID   uint64 `json:"creator_id"`
}

func toCollectionResp(col model.Collection) collectionResp {
	return collectionResp{
		ID:          col.ID,
		EventName:   col.EventName,
		Price:       col.Price,
		MaxTickets:  col.MaxTickets,
		MintedCount: col.MintedCount,
		CreatorID:   col.CreatorID,
	}
}

// Create registers a new collection owned by the caller.
func (h *CollectionHandler) Create(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createCollectionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.EventName = strings.TrimSpace(req.EventName)
	if req.EventName == "" || req.MaxTickets == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_name and max_tickets required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	id, err := h.Collections.Create(ctx, req.EventName, req.Price, req.MaxTickets, uid)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	col, err := h.Collections.Get(ctx, id)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusCreated, toCollectionResp(col))
}

// List returns collections, optionally filtered by event name (?search=).
// Public and response-cached.
func (h *CollectionHandler) List(c echo.Context) error {
	ctx, cancel := reqContext(c)
	defer cancel()

	cols, err := h.Collections.List(ctx, strings.TrimSpace(c.QueryParam("search")))
	if err != nil {
		return jsonRepoErr(c, err)
	}
	out := make([]collectionResp, 0, len(cols))
	for _, col := range cols {
		out = append(out, toCollectionResp(col))
	}
	return c.JSON(http.StatusOK, echo.Map{"collections": out})
}

// Get returns a single collection, covering the event name, price,
// capacity and creator accessors in one read.
func (h *CollectionHandler) Get(c echo.Context) error {
	id, ok := pathUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid collection id"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	col, err := h.Collections.Get(ctx, id)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	return c.JSON(http.StatusOK, toCollectionResp(col))
}

// ActiveListings returns the open resale listings of a collection with
// their current highest amounts. Public and response-cached.
func (h *CollectionHandler) ActiveListings(c echo.Context) error {
	id, ok := pathUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid collection id"})
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	if _, err := h.Collections.Get(ctx, id); err != nil {
		return jsonRepoErr(c, err)
	}
	listings, bids, err := h.Listings.ListActiveByCollection(ctx, id)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	type entry struct {
		Serial     uint32 `json:"serial"`
		AskPrice   uint64 `json:"ask_price"`
		HighestBid uint64 `json:"highest_bid"`
		HasBidder  bool   `json:"has_bidder"`
	}
	out := make([]entry, 0, len(listings))
	for i, l := range listings {
		out = append(out, entry{
			Serial:     l.Serial,
			AskPrice:   l.AskPrice,
			HighestBid: bids[i].Amount,
			HasBidder:  bids[i].BidderID != nil,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"collection_id": id, "listings": out})
}

// Purchase is the primary sale: it pulls the fixed price from the buyer via
// the ledger allowance (spender is the exchange account), pays the
// collection creator and mints the next serial to the buyer, all inside
// one transaction. The collection row is locked FOR UPDATE so concurrent
// purchases of the same collection serialize and serials stay dense.
func (h *CollectionHandler) Purchase(c echo.Context) error {
	uid, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid collection id"})
	}
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.HolderName = strings.TrimSpace(req.HolderName)
	if req.HolderName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_name required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	tx, err := h.Collections.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	col, err := h.Collections.GetTx(ctx, tx, id, true)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if col.MintedCount >= col.MaxTickets {
		return jsonRepoErr(c, repository.ErrCapacityExceeded)
	}
	serial := col.MintedCount + 1

	if col.Price > 0 {
		if err := h.Ledger.TransferFromTx(ctx, tx, h.ExchangeID, uid, col.CreatorID, col.Price); err != nil {
			return jsonRepoErr(c, err)
		}
	}

	expiresAt := time.Now().UTC().Add(time.Duration(h.Cfg.ValidityDays) * 24 * time.Hour)
	ticketID, err := h.Tickets.MintTx(ctx, tx, col.ID, serial, uid, req.HolderName, expiresAt)
	if err != nil {
		return jsonRepoErr(c, err)
	}
	if err := h.Collections.IncrementMintedTx(ctx, tx, col.ID); err != nil {
		return jsonRepoErr(c, err)
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	h.publishMinted(ticketID, col, serial, uid, req.HolderName, expiresAt)

	return c.JSON(http.StatusCreated, echo.Map{
		"ticket_id":     ticketID,
		"collection_id": col.ID,
		"serial":        serial,
		"holder_id":     uid,
		"holder_name":   req.HolderName,
		"price":         col.Price,
		"expires_at":    expiresAt,
	})
}

// publishMinted emits the ticket.minted event. Best effort: a broker
// outage must not fail a committed purchase.
func (h *CollectionHandler) publishMinted(ticketID uint64, col model.Collection, serial uint32, buyerID uint64, holderName string, expiresAt time.Time) {
	ev := queue.TicketMintedEvent{
		TicketID:     ticketID,
		CollectionID: col.ID,
		EventName:    col.EventName,
		Serial:       serial,
		BuyerID:      buyerID,
		HolderName:   holderName,
		Price:        col.Price,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
		MintedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := queue_publisher.PublishTicketMinted(ctx, ev); err != nil {
		log.Printf("publish ticket.minted failed: %v", err)
	}
}
