package model

import "time"

// Listing is an active offer to sell a ticket on the exchange. While a
// listing is active the exchange's system account holds the ticket in
// custody; the original owner is recorded so the ticket (or the proceeds)
// can be routed back on delist or settlement. Deactivated rows are kept for
// history; "never listed" is the absence of a row, not a zero-valued row.
//
// Fields:
//
//	ID              – primary key identifier.
//	CollectionID    – collection of the listed ticket.
//	Serial          – ticket serial within the collection.
//	AskPrice        – floor price; also the sentinel amount of the initial bid.
//	OriginalOwnerID – account that listed the ticket.
//	Active          – true while the auction is open.
//	CreatedAt       – when the ticket was listed.
//	UpdatedAt       – last state change.
type Listing struct {
	ID              uint64    // listings.id
	CollectionID    uint64    // listings.collection_id
	Serial          uint32    // listings.serial
	AskPrice        uint64    // listings.ask_price
	OriginalOwnerID uint64    // listings.original_owner_id
	Active          bool      // listings.active
	CreatedAt       time.Time // listings.created_at
	UpdatedAt       time.Time // listings.updated_at
}

// EscrowedBid is the single highest bid attached to a listing. A nil
// BidderID marks the sentinel floor created at listing time: the amount
// equals the ask price and no funds are escrowed. Once a real bidder
// appears, exactly Amount is held in the exchange wallet for this listing;
// replacing the bid refunds the superseded bidder in the same transaction
// that records the new one.
//
// Fields:
//
//	ListingID     – owning listing (one bid row per listing).
//	Amount        – current highest bid.
//	BidderID      – bidding account (nil for the sentinel floor).
//	RequestedName – display name applied to the ticket if this bid wins.
//	UpdatedAt     – last bid replacement.
type EscrowedBid struct {
	ListingID     uint64    // listing_bids.listing_id
	Amount        uint64    // listing_bids.amount
	BidderID      *uint64   // listing_bids.bidder_id (nullable)
	RequestedName string    // listing_bids.requested_name
	UpdatedAt     time.Time // listing_bids.updated_at
}
