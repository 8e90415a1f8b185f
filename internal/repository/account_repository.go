package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sp1d5r/ticket-exchange/internal/model"
	"github.com/sp1d5r/ticket-exchange/internal/utils"
)

// exchangeEmail is the reserved address of the system account that holds
// tickets and escrowed funds while auctions run. It is not loginable: the
// stored password hash is empty and bcrypt never verifies against it.
const exchangeEmail = "exchange@system.local"

// AccountRepo provides persistence for accounts.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo returns an AccountRepo bound to the given database.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *AccountRepo) DB() *sql.DB { return r.db }

// Create inserts a trader account and returns its ID.
func (r *AccountRepo) Create(ctx context.Context, email, password string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO accounts (email, password_hash, role) VALUES (?,?,'TRADER')",
		email, hash)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var a model.Account
	err := r.db.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM accounts WHERE email=? LIMIT 1",
		email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	var a model.Account
	err := r.db.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM accounts WHERE id=? LIMIT 1",
		id).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrAccountNotFound
	}
	return a, err
}

// ExistsTx reports whether an account id exists, within a transaction.
func (r *AccountRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM accounts WHERE id=? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureExchangeAccount returns the id of the SYSTEM custody account,
// creating it (and its wallet row) on first startup. Safe to call on every
// boot.
func (r *AccountRepo) EnsureExchangeAccount(ctx context.Context) (uint64, error) {
	var id uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE email=? LIMIT 1", exchangeEmail).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO accounts (email, password_hash, role) VALUES (?,'','SYSTEM')",
		exchangeEmail)
	if err != nil {
		return 0, err
	}
	created, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	id = uint64(created)
	if _, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO wallets (account_id, balance) VALUES (?,0)", id); err != nil {
		return 0, err
	}
	return id, nil
}
