package repository

import (
	"context"
	"database/sql"
)

// LedgerRepo implements the value ledger used as the payment medium:
// per-account balances plus (owner, spender) allowances. Every mutating
// operation has a *Tx variant taking an open transaction so an exchange
// settlement (two payments, a refund, a custody transfer) commits or
// rolls back as one unit. Debits are guarded in SQL (`balance >= ?`) so a
// concurrent spend can never drive a wallet negative.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo returns a LedgerRepo bound to the given database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *LedgerRepo) DB() *sql.DB { return r.db }

// Balance returns the account's current balance. Accounts without a wallet
// row read as zero.
func (r *LedgerRepo) Balance(ctx context.Context, accountID uint64) (uint64, error) {
	var bal uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT balance FROM wallets WHERE account_id=? LIMIT 1", accountID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return bal, err
}

// Allowance returns how much spender may still pull from owner.
func (r *LedgerRepo) Allowance(ctx context.Context, ownerID, spenderID uint64) (uint64, error) {
	var amt uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT amount FROM allowances WHERE owner_id=? AND spender_id=? LIMIT 1",
		ownerID, spenderID).Scan(&amt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amt, err
}

// Approve sets (not increments) the allowance owner grants spender.
func (r *LedgerRepo) Approve(ctx context.Context, ownerID, spenderID, amount uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allowances (owner_id, spender_id, amount) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE amount=VALUES(amount)`,
		ownerID, spenderID, amount)
	return err
}

// CreditTx adds funds to an account, creating the wallet row on first use.
func (r *LedgerRepo) CreditTx(ctx context.Context, tx *sql.Tx, accountID, amount uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (account_id, balance) VALUES (?,?)
		 ON DUPLICATE KEY UPDATE balance=balance+VALUES(balance)`,
		accountID, amount)
	return err
}

// debitTx removes funds if and only if the wallet covers the amount.
func (r *LedgerRepo) debitTx(ctx context.Context, tx *sql.Tx, accountID, amount uint64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE wallets SET balance=balance-? WHERE account_id=? AND balance>=?",
		amount, accountID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransferFailed
	}
	return nil
}

// TransferTx moves funds between two accounts. A zero amount is a no-op so
// zero-valued fee legs settle cleanly.
func (r *LedgerRepo) TransferTx(ctx context.Context, tx *sql.Tx, fromID, toID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := r.debitTx(ctx, tx, fromID, amount); err != nil {
		return err
	}
	return r.CreditTx(ctx, tx, toID, amount)
}

// Transfer is the standalone variant of TransferTx for direct wallet
// payments outside exchange settlement.
func (r *LedgerRepo) Transfer(ctx context.Context, fromID, toID, amount uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.TransferTx(ctx, tx, fromID, toID, amount); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TransferFromTx pulls funds from owner to dest on behalf of spender,
// consuming allowance. The allowance row is locked first so two concurrent
// pulls cannot both observe the same remaining allowance.
//
//	ErrAllowanceTooLow – owner granted spender less than amount
//	ErrTransferFailed  – owner's wallet cannot cover the amount
func (r *LedgerRepo) TransferFromTx(ctx context.Context, tx *sql.Tx, spenderID, ownerID, destID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	var allowed uint64
	err := tx.QueryRowContext(ctx,
		"SELECT amount FROM allowances WHERE owner_id=? AND spender_id=? LIMIT 1 FOR UPDATE",
		ownerID, spenderID).Scan(&allowed)
	if err == sql.ErrNoRows {
		return ErrAllowanceTooLow
	}
	if err != nil {
		return err
	}
	if allowed < amount {
		return ErrAllowanceTooLow
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE allowances SET amount=amount-? WHERE owner_id=? AND spender_id=?",
		amount, ownerID, spenderID); err != nil {
		return err
	}
	if err := r.debitTx(ctx, tx, ownerID, amount); err != nil {
		return err
	}
	return r.CreditTx(ctx, tx, destID, amount)
}

// Deposit credits the caller's wallet. This stands in for the external
// token mint in the reference design; a deployment backed by a real ledger
// would delete this and point LedgerRepo at it instead.
func (r *LedgerRepo) Deposit(ctx context.Context, accountID, amount uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.CreditTx(ctx, tx, accountID, amount); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
