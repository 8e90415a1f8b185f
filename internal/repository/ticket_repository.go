package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sp1d5r/ticket-exchange/internal/model"
)

// TicketRepo provides persistence for tickets. Transfer authorization
// follows the registry rules: only the current holder or the approved
// transferee may move a ticket, and the approval is cleared on every
// successful transfer. Expiry is deliberately NOT checked here: stale
// tickets remain transferable at this layer and callers enforce staleness
// policy where required.
type TicketRepo struct{ db *sql.DB }

// NewTicketRepo returns a TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *TicketRepo) DB() *sql.DB { return r.db }

const ticketCols = "id, collection_id, serial, holder_id, approved_id, holder_name, used, expires_at, created_at, updated_at"

func scanTicket(row *sql.Row) (model.Ticket, error) {
	var (
		t        model.Ticket
		approved sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.CollectionID, &t.Serial, &t.HolderID, &approved,
		&t.HolderName, &t.Used, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrTicketNotFound
	}
	if err != nil {
		return t, err
	}
	if approved.Valid {
		id := uint64(approved.Int64)
		t.ApprovedID = &id
	}
	return t, nil
}

// Get fetches a ticket by collection and serial.
func (r *TicketRepo) Get(ctx context.Context, collectionID uint64, serial uint32) (model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		"SELECT "+ticketCols+" FROM tickets WHERE collection_id=? AND serial=? LIMIT 1",
		collectionID, serial))
}

// GetTx fetches a ticket inside a transaction, optionally locking the row.
// All mutating exchange operations lock the ticket row so concurrent calls
// on the same (collection, serial) key serialize.
func (r *TicketRepo) GetTx(ctx context.Context, tx *sql.Tx, collectionID uint64, serial uint32, forUpdate bool) (model.Ticket, error) {
	q := "SELECT " + ticketCols + " FROM tickets WHERE collection_id=? AND serial=? LIMIT 1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	return scanTicket(tx.QueryRowContext(ctx, q, collectionID, serial))
}

// MintTx inserts a freshly minted ticket. Serial assignment and the cap
// check belong to the caller, which must hold the collection row lock.
func (r *TicketRepo) MintTx(ctx context.Context, tx *sql.Tx, collectionID uint64, serial uint32, holderID uint64, holderName string, expiresAt time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO tickets (collection_id, serial, holder_id, holder_name, expires_at) VALUES (?,?,?,?,?)",
		collectionID, serial, holderID, holderName, expiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// TransferTx moves a ticket from one holder to another on behalf of
// caller. It enforces the registry authorization rules and clears any
// approved transferee:
//
//	ErrTicketNotFound    – no such serial in the collection
//	ErrOwnershipMismatch – from is not the current holder
//	ErrUnauthorized      – caller is neither from nor the approved transferee
//
// The updated ticket is returned so callers can report the new state
// without a second read.
func (r *TicketRepo) TransferTx(ctx context.Context, tx *sql.Tx, callerID, fromID, toID, collectionID uint64, serial uint32) (model.Ticket, error) {
	t, err := r.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return model.Ticket{}, err
	}
	if t.HolderID != fromID {
		return model.Ticket{}, ErrOwnershipMismatch
	}
	approved := t.ApprovedID != nil && *t.ApprovedID == callerID
	if callerID != fromID && !approved {
		return model.Ticket{}, ErrUnauthorized
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE tickets SET holder_id=?, approved_id=NULL WHERE id=?", toID, t.ID); err != nil {
		return model.Ticket{}, err
	}
	t.HolderID = toID
	t.ApprovedID = nil
	return t, nil
}

// ApproveTx records the single approved transferee for a ticket. Holder
// authorization and recipient validation are the caller's responsibility.
func (r *TicketRepo) ApproveTx(ctx context.Context, tx *sql.Tx, ticketID, approvedID uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tickets SET approved_id=? WHERE id=?", approvedID, ticketID)
	return err
}

// SetUsedTx flips the one-way used flag.
func (r *TicketRepo) SetUsedTx(ctx context.Context, tx *sql.Tx, ticketID uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tickets SET used=1 WHERE id=?", ticketID)
	return err
}

// SetHolderNameTx updates the display name. Used by the holder's rename
// endpoint and by settlement, which applies the winning bidder's requested
// name before handing the ticket over.
func (r *TicketRepo) SetHolderNameTx(ctx context.Context, tx *sql.Tx, ticketID uint64, name string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tickets SET holder_name=? WHERE id=?", name, ticketID)
	return err
}

// BalanceOf counts how many tickets of a collection an account holds.
func (r *TicketRepo) BalanceOf(ctx context.Context, collectionID, holderID uint64) (uint32, error) {
	var n uint32
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tickets WHERE collection_id=? AND holder_id=?",
		collectionID, holderID).Scan(&n)
	return n, err
}

// ListByHolder returns all tickets an account currently holds, newest
// first, across all collections.
func (r *TicketRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ticketCols+" FROM tickets WHERE holder_id=? ORDER BY created_at DESC",
		holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Ticket, 0)
	for rows.Next() {
		var (
			t        model.Ticket
			approved sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.CollectionID, &t.Serial, &t.HolderID, &approved,
			&t.HolderName, &t.Used, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if approved.Valid {
			id := uint64(approved.Int64)
			t.ApprovedID = &id
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
