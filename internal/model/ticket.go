package model

import "time"

// Ticket represents a single non-fungible ticket inside a collection.
// Serials are assigned sequentially starting at 1 and are never reused,
// even after a ticket is used or expires. The approved transferee is the at
// most one account pre-authorized to move the ticket on the holder's
// behalf; it is cleared on every successful transfer.
//
// The used flag only transitions false -> true. Expiry is a derived,
// read-time predicate (now past ExpiresAt): an expired ticket still exists
// and can still be transferred at the registry layer; policy checks against
// stale tickets belong to the callers (the exchange rejects listing and
// bidding on them).
//
// Fields:
//
//	ID           – global primary key (internal only; the API addresses
//	               tickets by collection id + serial).
//	CollectionID – owning collection.
//	Serial       – per-collection ticket number in [1, MaxTickets].
//	HolderID     – current owning account.
//	ApprovedID   – pre-authorized transferee (nil when none).
//	HolderName   – display name, set at mint and updatable by the holder.
//	Used         – one-way redemption flag.
//	ExpiresAt    – mint time plus the fixed validity window.
//	CreatedAt    – mint timestamp.
//	UpdatedAt    – last modification timestamp.
type Ticket struct {
	ID           uint64    // tickets.id
	CollectionID uint64    // tickets.collection_id
	Serial       uint32    // tickets.serial
	HolderID     uint64    // tickets.holder_id
	ApprovedID   *uint64   // tickets.approved_id (nullable)
	HolderName   string    // tickets.holder_name
	Used         bool      // tickets.used
	ExpiresAt    time.Time // tickets.expires_at
	CreatedAt    time.Time // tickets.created_at
	UpdatedAt    time.Time // tickets.updated_at
}
