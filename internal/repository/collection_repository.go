package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sp1d5r/ticket-exchange/internal/model"
)

// CollectionRepo provides persistence for ticket collections. Each row is
// one registry instance; the exchange and the primary-sale desk address
// collections purely by id, never by embedded state.
type CollectionRepo struct{ db *sql.DB }

// NewCollectionRepo returns a CollectionRepo bound to the given database.
func NewCollectionRepo(db *sql.DB) *CollectionRepo { return &CollectionRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *CollectionRepo) DB() *sql.DB { return r.db }

const collectionCols = "id, event_name, price, max_tickets, minted_count, creator_id, created_at"

func scanCollection(row *sql.Row) (model.Collection, error) {
	var c model.Collection
	err := row.Scan(&c.ID, &c.EventName, &c.Price, &c.MaxTickets, &c.MintedCount, &c.CreatorID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrCollectionNotFound
	}
	return c, err
}

// Create inserts a new collection and returns its id.
func (r *CollectionRepo) Create(ctx context.Context, eventName string, price uint64, maxTickets uint32, creatorID uint64) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO collections (event_name, price, max_tickets, creator_id) VALUES (?,?,?,?)",
		eventName, price, maxTickets, creatorID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Get fetches a collection by id.
func (r *CollectionRepo) Get(ctx context.Context, id uint64) (model.Collection, error) {
	return scanCollection(r.db.QueryRowContext(ctx,
		"SELECT "+collectionCols+" FROM collections WHERE id=? LIMIT 1", id))
}

// GetTx fetches a collection inside a transaction. When forUpdate is true
// the row is locked, serializing mint serial assignment per collection.
func (r *CollectionRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (model.Collection, error) {
	q := "SELECT " + collectionCols + " FROM collections WHERE id=? LIMIT 1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	return scanCollection(tx.QueryRowContext(ctx, q, id))
}

// IncrementMintedTx bumps the minted counter after a serial has been
// assigned. Callers must hold the collection row lock (GetTx forUpdate) so
// the counter stays in step with the highest issued serial.
func (r *CollectionRepo) IncrementMintedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE collections SET minted_count = minted_count + 1 WHERE id=?", id)
	return err
}

// List returns collections, newest first, optionally filtered by a
// case-insensitive event-name substring.
func (r *CollectionRepo) List(ctx context.Context, search string) ([]model.Collection, error) {
	q := "SELECT " + collectionCols + " FROM collections"
	args := []interface{}{}
	if s := strings.TrimSpace(search); s != "" {
		q += " WHERE event_name LIKE ?"
		args = append(args, "%"+s+"%")
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Collection, 0)
	for rows.Next() {
		var c model.Collection
		if err := rows.Scan(&c.ID, &c.EventName, &c.Price, &c.MaxTickets, &c.MintedCount, &c.CreatorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
