package model

import "time"

// Collection is one ticket registry instance, bound 1:1 to an event. The
// marketplace never embeds registry state; it refers to collections by id,
// so the `collections` table acts as the registry of registries. The minted
// count only ever grows and is bounded by MaxTickets.
//
// Fields:
//
//	ID          – primary key identifier, the stable registry handle.
//	EventName   – human-readable name of the event.
//	Price       – fixed primary-sale price per ticket.
//	MaxTickets  – hard cap on tickets that can ever be minted.
//	MintedCount – number of tickets minted so far (serials 1..MintedCount).
//	CreatorID   – account that created the collection; receives primary-sale
//	              proceeds and the resale fee split.
//	CreatedAt   – creation timestamp.
type Collection struct {
	ID          uint64    // collections.id
	EventName   string    // collections.event_name
	Price       uint64    // collections.price
	MaxTickets  uint32    // collections.max_tickets
	MintedCount uint32    // collections.minted_count
	CreatorID   uint64    // collections.creator_id
	CreatedAt   time.Time // collections.created_at
}
