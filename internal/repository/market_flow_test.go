package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/sp1d5r/ticket-exchange/internal/market"
)

// These tests run against a real MySQL instance and are skipped unless
// TEST_DATABASE_DSN is set, e.g.
//
//	TEST_DATABASE_DSN='root:secret@tcp(127.0.0.1:3306)/ticket_exchange_test?parseTime=true&loc=UTC'
//
// The schema is dropped and re-applied per test, so point the DSN at a
// throwaway database.

const testFeePercent = 5

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping MySQL integration tests")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	resetSchema(t, db)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func resetSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, tbl := range []string{"listing_bids", "listings", "allowances", "wallets", "tickets", "collections", "refresh_tokens", "accounts"} {
		_, err := db.Exec("DROP TABLE IF EXISTS " + tbl)
		require.NoError(t, err)
	}
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "schema.sql"))
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

// fixture bundles the repositories plus the provisioned system account the
// same way main wires them.
type fixture struct {
	db          *sql.DB
	accounts    *AccountRepo
	collections *CollectionRepo
	tickets     *TicketRepo
	ledger      *LedgerRepo
	listings    *ListingRepo
	exchangeID  uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{
		db:          db,
		accounts:    NewAccountRepo(db),
		collections: NewCollectionRepo(db),
		tickets:     NewTicketRepo(db),
		ledger:      NewLedgerRepo(db),
		listings:    NewListingRepo(db),
	}
	id, err := f.accounts.EnsureExchangeAccount(context.Background())
	require.NoError(t, err)
	f.exchangeID = id
	return f
}

func (f *fixture) newTrader(t *testing.T, email string) uint64 {
	t.Helper()
	id, err := f.accounts.Create(context.Background(), email, "secret", 4)
	require.NoError(t, err)
	return id
}

func (f *fixture) fund(t *testing.T, accountID, amount, allowance uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.Deposit(ctx, accountID, amount))
	require.NoError(t, f.ledger.Approve(ctx, accountID, f.exchangeID, allowance))
}

// purchase mirrors the primary-sale handler: lock the collection, pull the
// price through the buyer's allowance, mint the next serial.
func (f *fixture) purchase(ctx context.Context, collectionID, buyerID uint64, holderName string) (uint32, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	col, err := f.collections.GetTx(ctx, tx, collectionID, true)
	if err != nil {
		return 0, err
	}
	if col.MintedCount >= col.MaxTickets {
		return 0, ErrCapacityExceeded
	}
	serial := col.MintedCount + 1
	if col.Price > 0 {
		if err := f.ledger.TransferFromTx(ctx, tx, f.exchangeID, buyerID, col.CreatorID, col.Price); err != nil {
			return 0, err
		}
	}
	expires := time.Now().UTC().Add(10 * 24 * time.Hour)
	if _, err := f.tickets.MintTx(ctx, tx, col.ID, serial, buyerID, holderName, expires); err != nil {
		return 0, err
	}
	if err := f.collections.IncrementMintedTx(ctx, tx, col.ID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return serial, nil
}

// listTicket mirrors the exchange list handler.
func (f *fixture) listTicket(ctx context.Context, callerID, collectionID uint64, serial uint32, askPrice uint64) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	tk, err := f.tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return err
	}
	if market.ExpiredOrUsed(tk.ExpiresAt, tk.Used, time.Now().UTC()) {
		return ErrExpired
	}
	exists, err := f.listings.ExistsActiveTx(ctx, tx, collectionID, serial)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyListed
	}
	if _, err := f.tickets.TransferTx(ctx, tx, callerID, tk.HolderID, f.exchangeID, collectionID, serial); err != nil {
		return err
	}
	if _, err := f.listings.CreateTx(ctx, tx, collectionID, serial, askPrice, tk.HolderID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// submitBid mirrors the exchange bid handler: escrow first, refund the
// superseded bidder in the same transaction.
func (f *fixture) submitBid(ctx context.Context, bidderID, collectionID uint64, serial uint32, amount uint64, requestedName string) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := f.listings.ActiveTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return err
	}
	tk, err := f.tickets.GetTx(ctx, tx, collectionID, serial, false)
	if err != nil {
		return err
	}
	if market.ExpiredOrUsed(tk.ExpiresAt, tk.Used, time.Now().UTC()) {
		return ErrExpired
	}
	if bidderID == listing.OriginalOwnerID {
		return ErrSelfBid
	}
	if !market.OutbidsCurrent(bid.Amount, amount) {
		return ErrBidTooLow
	}
	if err := f.ledger.TransferFromTx(ctx, tx, f.exchangeID, bidderID, f.exchangeID, amount); err != nil {
		return err
	}
	if bid.BidderID != nil {
		if err := f.ledger.TransferTx(ctx, tx, f.exchangeID, *bid.BidderID, bid.Amount); err != nil {
			return err
		}
	}
	if err := f.listings.ReplaceBidTx(ctx, tx, listing.ID, amount, bidderID, requestedName); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// acceptBid mirrors the settlement handler. Returns fee and payout for
// assertions (both zero on the no-bidder path).
func (f *fixture) acceptBid(ctx context.Context, callerID, collectionID uint64, serial uint32) (fee, payout uint64, err error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := f.listings.ActiveTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return 0, 0, err
	}
	if callerID != listing.OriginalOwnerID {
		return 0, 0, ErrUnauthorized
	}

	if bid.BidderID == nil {
		if _, err := f.tickets.TransferTx(ctx, tx, f.exchangeID, f.exchangeID, listing.OriginalOwnerID, collectionID, serial); err != nil {
			return 0, 0, err
		}
		if err := f.listings.CloseTx(ctx, tx, listing.ID); err != nil {
			return 0, 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, 0, err
		}
		committed = true
		return 0, 0, nil
	}

	col, err := f.collections.GetTx(ctx, tx, listing.CollectionID, false)
	if err != nil {
		return 0, 0, err
	}
	fee, payout = market.FeeSplit(bid.Amount, testFeePercent)

	tk, err := f.tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return 0, 0, err
	}
	if err := f.tickets.SetHolderNameTx(ctx, tx, tk.ID, bid.RequestedName); err != nil {
		return 0, 0, err
	}
	if _, err := f.tickets.TransferTx(ctx, tx, f.exchangeID, f.exchangeID, *bid.BidderID, collectionID, serial); err != nil {
		return 0, 0, err
	}
	if err := f.ledger.TransferTx(ctx, tx, f.exchangeID, listing.OriginalOwnerID, payout); err != nil {
		return 0, 0, err
	}
	if err := f.ledger.TransferTx(ctx, tx, f.exchangeID, col.CreatorID, fee); err != nil {
		return 0, 0, err
	}
	if err := f.listings.CloseTx(ctx, tx, listing.ID); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	committed = true
	return fee, payout, nil
}

// delistTicket mirrors the delist handler, including its staleness guard.
func (f *fixture) delistTicket(ctx context.Context, callerID, collectionID uint64, serial uint32) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	listing, bid, err := f.listings.ActiveTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return err
	}
	if callerID != listing.OriginalOwnerID {
		return ErrUnauthorized
	}
	tk, err := f.tickets.GetTx(ctx, tx, collectionID, serial, true)
	if err != nil {
		return err
	}
	if market.ExpiredOrUsed(tk.ExpiresAt, tk.Used, time.Now().UTC()) {
		return ErrExpired
	}
	if _, err := f.tickets.TransferTx(ctx, tx, f.exchangeID, f.exchangeID, listing.OriginalOwnerID, collectionID, serial); err != nil {
		return err
	}
	if bid.BidderID != nil {
		if err := f.ledger.TransferTx(ctx, tx, f.exchangeID, *bid.BidderID, bid.Amount); err != nil {
			return err
		}
	}
	if err := f.listings.CloseTx(ctx, tx, listing.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (f *fixture) balance(t *testing.T, accountID uint64) uint64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return bal
}

// expireTicket backdates a ticket so staleness paths can be exercised
// without waiting out the validity window.
func (f *fixture) expireTicket(t *testing.T, collectionID uint64, serial uint32) {
	t.Helper()
	_, err := f.db.Exec(
		"UPDATE tickets SET expires_at = DATE_SUB(UTC_TIMESTAMP(), INTERVAL 1 DAY) WHERE collection_id=? AND serial=?",
		collectionID, serial)
	require.NoError(t, err)
}

func TestPrimarySale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	buyer := f.newTrader(t, "buyer@test.local")
	broke := f.newTrader(t, "broke@test.local")

	colID, err := f.collections.Create(ctx, "Open Air 2026", 200, 2, creator)
	require.NoError(t, err)

	f.fund(t, buyer, 1000, 500)

	serial, err := f.purchase(ctx, colID, buyer, "Buyer One")
	require.NoError(t, err)
	require.Equal(t, uint32(1), serial)

	require.Equal(t, uint64(800), f.balance(t, buyer))
	require.Equal(t, uint64(200), f.balance(t, creator))
	remaining, err := f.ledger.Allowance(ctx, buyer, f.exchangeID)
	require.NoError(t, err)
	require.Equal(t, uint64(300), remaining)

	n, err := f.tickets.BalanceOf(ctx, colID, buyer)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)

	// No allowance at all.
	_, err = f.purchase(ctx, colID, broke, "No Funds")
	require.ErrorIs(t, err, ErrAllowanceTooLow)

	// Allowance without balance.
	require.NoError(t, f.ledger.Approve(ctx, broke, f.exchangeID, 1000))
	_, err = f.purchase(ctx, colID, broke, "No Funds")
	require.ErrorIs(t, err, ErrTransferFailed)

	// Capacity: serials are dense and the cap is hard.
	serial, err = f.purchase(ctx, colID, buyer, "Buyer Two")
	require.NoError(t, err)
	require.Equal(t, uint32(2), serial)
	_, err = f.purchase(ctx, colID, buyer, "Buyer Three")
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRegistryTransferAndApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	holder := f.newTrader(t, "holder@test.local")
	agent := f.newTrader(t, "agent@test.local")
	dest := f.newTrader(t, "dest@test.local")

	colID, err := f.collections.Create(ctx, "Club Night", 0, 5, creator)
	require.NoError(t, err)
	serial, err := f.purchase(ctx, colID, holder, "Holder")
	require.NoError(t, err)

	// A stranger can neither move the ticket nor claim a wrong holder.
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = f.tickets.TransferTx(ctx, tx, agent, holder, dest, colID, serial)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.tickets.TransferTx(ctx, tx, agent, agent, dest, colID, serial)
	require.ErrorIs(t, err, ErrOwnershipMismatch)
	require.NoError(t, tx.Rollback())

	// Approve the agent; the agent may move it once, approval clears.
	tx, err = f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	tk, err := f.tickets.GetTx(ctx, tx, colID, serial, true)
	require.NoError(t, err)
	require.NoError(t, f.tickets.ApproveTx(ctx, tx, tk.ID, agent))
	require.NoError(t, tx.Commit())

	tx, err = f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	moved, err := f.tickets.TransferTx(ctx, tx, agent, holder, dest, colID, serial)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Equal(t, dest, moved.HolderID)
	require.Nil(t, moved.ApprovedID)

	// The spent approval does not survive the transfer.
	tx, err = f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = f.tickets.TransferTx(ctx, tx, agent, dest, holder, colID, serial)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, tx.Rollback())
}

func TestAuctionSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	seller := f.newTrader(t, "seller@test.local")
	alice := f.newTrader(t, "alice@test.local")
	bob := f.newTrader(t, "bob@test.local")

	colID, err := f.collections.Create(ctx, "Festival", 100, 10, creator)
	require.NoError(t, err)
	f.fund(t, seller, 100, 100)
	serial, err := f.purchase(ctx, colID, seller, "Seller")
	require.NoError(t, err)

	require.NoError(t, f.listTicket(ctx, seller, colID, serial, 150))

	// Listing moved the ticket into custody; the key reads as listed.
	tk, err := f.tickets.Get(ctx, colID, serial)
	require.NoError(t, err)
	require.Equal(t, f.exchangeID, tk.HolderID)
	_, bid, err := f.listings.Active(ctx, colID, serial)
	require.NoError(t, err)
	require.Nil(t, bid.BidderID)
	require.Equal(t, uint64(150), bid.Amount)

	// The floor must be strictly beaten.
	f.fund(t, alice, 500, 500)
	require.ErrorIs(t, f.submitBid(ctx, alice, colID, serial, 150, "Alice"), ErrBidTooLow)
	require.NoError(t, f.submitBid(ctx, alice, colID, serial, 151, "Alice"))
	require.Equal(t, uint64(349), f.balance(t, alice))
	require.Equal(t, uint64(151), f.balance(t, f.exchangeID))

	// Sellers cannot bid on their own listing.
	require.ErrorIs(t, f.submitBid(ctx, seller, colID, serial, 300, "Seller"), ErrSelfBid)

	// Outbidding refunds the superseded bidder in the same transaction.
	f.fund(t, bob, 500, 500)
	require.ErrorIs(t, f.submitBid(ctx, bob, colID, serial, 151, "Bob"), ErrBidTooLow)
	require.NoError(t, f.submitBid(ctx, bob, colID, serial, 200, "Bob"))
	require.Equal(t, uint64(500), f.balance(t, alice))
	require.Equal(t, uint64(300), f.balance(t, bob))
	require.Equal(t, uint64(200), f.balance(t, f.exchangeID))

	// Only the original owner settles.
	_, _, err = f.acceptBid(ctx, alice, colID, serial)
	require.ErrorIs(t, err, ErrUnauthorized)

	sellerBefore := f.balance(t, seller)
	creatorBefore := f.balance(t, creator)
	fee, payout, err := f.acceptBid(ctx, seller, colID, serial)
	require.NoError(t, err)
	require.Equal(t, uint64(10), fee) // floor(200*5/100)
	require.Equal(t, uint64(190), payout)

	require.Equal(t, sellerBefore+payout, f.balance(t, seller))
	require.Equal(t, creatorBefore+fee, f.balance(t, creator))
	require.Equal(t, uint64(0), f.balance(t, f.exchangeID))

	tk, err = f.tickets.Get(ctx, colID, serial)
	require.NoError(t, err)
	require.Equal(t, bob, tk.HolderID)
	require.Equal(t, "Bob", tk.HolderName)
	require.Nil(t, tk.ApprovedID)

	_, _, err = f.listings.Active(ctx, colID, serial)
	require.ErrorIs(t, err, ErrNotListed)

	// The settled ticket can be listed again by its new holder.
	require.NoError(t, f.listTicket(ctx, bob, colID, serial, 250))
}

func TestDelistRefundsBidder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	seller := f.newTrader(t, "seller@test.local")
	alice := f.newTrader(t, "alice@test.local")

	colID, err := f.collections.Create(ctx, "Matinee", 0, 5, creator)
	require.NoError(t, err)
	serial, err := f.purchase(ctx, colID, seller, "Seller")
	require.NoError(t, err)

	require.NoError(t, f.listTicket(ctx, seller, colID, serial, 100))
	require.ErrorIs(t, f.listTicket(ctx, seller, colID, serial, 100), ErrAlreadyListed)
	f.fund(t, alice, 300, 300)
	require.NoError(t, f.submitBid(ctx, alice, colID, serial, 120, "Alice"))

	require.ErrorIs(t, f.delistTicket(ctx, alice, colID, serial), ErrUnauthorized)
	require.NoError(t, f.delistTicket(ctx, seller, colID, serial))

	require.Equal(t, uint64(300), f.balance(t, alice))
	require.Equal(t, uint64(0), f.balance(t, f.exchangeID))
	tk, err := f.tickets.Get(ctx, colID, serial)
	require.NoError(t, err)
	require.Equal(t, seller, tk.HolderID)
	_, _, err = f.listings.Active(ctx, colID, serial)
	require.ErrorIs(t, err, ErrNotListed)
}

func TestExpiredListingAsymmetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	seller := f.newTrader(t, "seller@test.local")
	alice := f.newTrader(t, "alice@test.local")

	colID, err := f.collections.Create(ctx, "Last Show", 0, 5, creator)
	require.NoError(t, err)
	serial, err := f.purchase(ctx, colID, seller, "Seller")
	require.NoError(t, err)

	require.NoError(t, f.listTicket(ctx, seller, colID, serial, 100))
	f.expireTicket(t, colID, serial)

	// Stale tickets take no new bids and cannot be delisted...
	f.fund(t, alice, 300, 300)
	require.ErrorIs(t, f.submitBid(ctx, alice, colID, serial, 120, "Alice"), ErrExpired)
	require.ErrorIs(t, f.delistTicket(ctx, seller, colID, serial), ErrExpired)

	// ...but the no-bidder accept path still closes the listing.
	fee, payout, err := f.acceptBid(ctx, seller, colID, serial)
	require.NoError(t, err)
	require.Zero(t, fee)
	require.Zero(t, payout)
	tk, err := f.tickets.Get(ctx, colID, serial)
	require.NoError(t, err)
	require.Equal(t, seller, tk.HolderID)
}

func TestExpiredOrUsedTicketCannotBeListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.newTrader(t, "creator@test.local")
	holder := f.newTrader(t, "holder@test.local")

	colID, err := f.collections.Create(ctx, "Encore", 0, 5, creator)
	require.NoError(t, err)
	expired, err := f.purchase(ctx, colID, holder, "Holder")
	require.NoError(t, err)
	f.expireTicket(t, colID, expired)
	require.ErrorIs(t, f.listTicket(ctx, holder, colID, expired, 100), ErrExpired)

	used, err := f.purchase(ctx, colID, holder, "Holder")
	require.NoError(t, err)
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	tk, err := f.tickets.GetTx(ctx, tx, colID, used, true)
	require.NoError(t, err)
	require.NoError(t, f.tickets.SetUsedTx(ctx, tx, tk.ID))
	require.NoError(t, tx.Commit())
	require.ErrorIs(t, f.listTicket(ctx, holder, colID, used, 100), ErrExpired)

	// Expired tickets still transfer at the registry layer.
	tx, err = f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = f.tickets.TransferTx(ctx, tx, holder, holder, creator, colID, expired)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}
