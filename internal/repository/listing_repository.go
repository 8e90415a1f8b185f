package repository

import (
	"context"
	"database/sql"

	"github.com/sp1d5r/ticket-exchange/internal/model"
)

// ListingRepo provides persistence for exchange listings and their single
// escrowed bid row. At most one active listing exists per (collection,
// serial); the mutating exchange operations acquire it FOR UPDATE so
// concurrent bids, acceptance and delisting on the same key serialize, as
// the auction invariants require. Operations on different keys proceed
// concurrently.
type ListingRepo struct{ db *sql.DB }

// NewListingRepo returns a ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *ListingRepo) DB() *sql.DB { return r.db }

const listingCols = "l.id, l.collection_id, l.serial, l.ask_price, l.original_owner_id, l.active, l.created_at, l.updated_at"

func scanListingBid(row *sql.Row) (model.Listing, model.EscrowedBid, error) {
	var (
		l      model.Listing
		b      model.EscrowedBid
		bidder sql.NullInt64
	)
	err := row.Scan(&l.ID, &l.CollectionID, &l.Serial, &l.AskPrice, &l.OriginalOwnerID,
		&l.Active, &l.CreatedAt, &l.UpdatedAt,
		&b.ListingID, &b.Amount, &bidder, &b.RequestedName, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, b, ErrNotListed
	}
	if err != nil {
		return l, b, err
	}
	if bidder.Valid {
		id := uint64(bidder.Int64)
		b.BidderID = &id
	}
	return l, b, nil
}

// Active returns the active listing and its bid for a key, for reads
// outside a transaction (highest-bid queries).
func (r *ListingRepo) Active(ctx context.Context, collectionID uint64, serial uint32) (model.Listing, model.EscrowedBid, error) {
	const q = `SELECT ` + listingCols + `, b.listing_id, b.amount, b.bidder_id, b.requested_name, b.updated_at
	           FROM listings l JOIN listing_bids b ON b.listing_id = l.id
	           WHERE l.collection_id=? AND l.serial=? AND l.active=1 LIMIT 1`
	return scanListingBid(r.db.QueryRowContext(ctx, q, collectionID, serial))
}

// ActiveTx is the transactional variant of Active. With forUpdate it locks
// both the listing and bid rows, which is the per-key mutual exclusion
// boundary for submitBid/acceptBid/delistTicket.
func (r *ListingRepo) ActiveTx(ctx context.Context, tx *sql.Tx, collectionID uint64, serial uint32, forUpdate bool) (model.Listing, model.EscrowedBid, error) {
	q := `SELECT ` + listingCols + `, b.listing_id, b.amount, b.bidder_id, b.requested_name, b.updated_at
	      FROM listings l JOIN listing_bids b ON b.listing_id = l.id
	      WHERE l.collection_id=? AND l.serial=? AND l.active=1 LIMIT 1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	return scanListingBid(tx.QueryRowContext(ctx, q, collectionID, serial))
}

// ExistsActiveTx reports whether a key already has an active listing.
func (r *ListingRepo) ExistsActiveTx(ctx context.Context, tx *sql.Tx, collectionID uint64, serial uint32) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM listings WHERE collection_id=? AND serial=? AND active=1 LIMIT 1 FOR UPDATE",
		collectionID, serial).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTx inserts a new active listing plus its sentinel bid row: amount
// equal to the ask price, no bidder, no escrowed funds.
func (r *ListingRepo) CreateTx(ctx context.Context, tx *sql.Tx, collectionID uint64, serial uint32, askPrice, originalOwnerID uint64) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO listings (collection_id, serial, ask_price, original_owner_id, active) VALUES (?,?,?,?,1)",
		collectionID, serial, askPrice, originalOwnerID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	listingID := uint64(id)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO listing_bids (listing_id, amount, bidder_id, requested_name) VALUES (?,?,NULL,'')",
		listingID, askPrice); err != nil {
		return 0, err
	}
	return listingID, nil
}

// ReplaceBidTx overwrites the bid row with a new highest bid. Refunding the
// superseded bidder is the caller's job, inside the same transaction.
func (r *ListingRepo) ReplaceBidTx(ctx context.Context, tx *sql.Tx, listingID, amount, bidderID uint64, requestedName string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE listing_bids SET amount=?, bidder_id=?, requested_name=? WHERE listing_id=?",
		amount, bidderID, requestedName, listingID)
	return err
}

// CloseTx terminates a listing: the row is deactivated and the bid row
// deleted, so the key reads as "not listed" again.
func (r *ListingRepo) CloseTx(ctx context.Context, tx *sql.Tx, listingID uint64) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM listing_bids WHERE listing_id=?", listingID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE listings SET active=0 WHERE id=?", listingID)
	return err
}

// ListActiveByCollection returns the open listings of a collection with
// their current highest amounts, for browse endpoints.
func (r *ListingRepo) ListActiveByCollection(ctx context.Context, collectionID uint64) ([]model.Listing, []model.EscrowedBid, error) {
	const q = `SELECT ` + listingCols + `, b.listing_id, b.amount, b.bidder_id, b.requested_name, b.updated_at
	           FROM listings l JOIN listing_bids b ON b.listing_id = l.id
	           WHERE l.collection_id=? AND l.active=1
	           ORDER BY l.serial`
	rows, err := r.db.QueryContext(ctx, q, collectionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	listings := make([]model.Listing, 0)
	bids := make([]model.EscrowedBid, 0)
	for rows.Next() {
		var (
			l      model.Listing
			b      model.EscrowedBid
			bidder sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.CollectionID, &l.Serial, &l.AskPrice, &l.OriginalOwnerID,
			&l.Active, &l.CreatedAt, &l.UpdatedAt,
			&b.ListingID, &b.Amount, &bidder, &b.RequestedName, &b.UpdatedAt); err != nil {
			return nil, nil, err
		}
		if bidder.Valid {
			id := uint64(bidder.Int64)
			b.BidderID = &id
		}
		listings = append(listings, l)
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return listings, bids, nil
}
