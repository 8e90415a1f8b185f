// Package queue defines message payloads exchanged over the message broker.
package queue

// TicketMintedEvent is published when a primary sale mints a new ticket.
// It carries enough for downstream consumers to log or trigger analytics
// without querying the primary database.
type TicketMintedEvent struct {
	TicketID     uint64 `json:"ticket_id"`
	CollectionID uint64 `json:"collection_id"`
	EventName    string `json:"event_name"`
	Serial       uint32 `json:"serial"`
	BuyerID      uint64 `json:"buyer_id"`
	HolderName   string `json:"holder_name"`
	Price        uint64 `json:"price"`
	ExpiresAt    string `json:"expires_at"`
	MintedAt     string `json:"minted_at"`
}

// TradeSettledEvent is published when a resale auction settles, either by
// the seller accepting a bid or by the listing being reclaimed with no
// bidder. Fee and payout are zero in the reclaim case.
type TradeSettledEvent struct {
	ListingID    uint64 `json:"listing_id"`
	CollectionID uint64 `json:"collection_id"`
	Serial       uint32 `json:"serial"`
	SellerID     uint64 `json:"seller_id"`
	BuyerID      uint64 `json:"buyer_id,omitempty"`
	Amount       uint64 `json:"amount"`
	Fee          uint64 `json:"fee"`
	Payout       uint64 `json:"payout"`
	SettledAt    string `json:"settled_at"`
}
