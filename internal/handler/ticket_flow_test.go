package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp1d5r/ticket-exchange/internal/repository"
)

// Redemption flows run against a real MySQL instance behind the same
// switch as the repository suite: set TEST_DATABASE_DSN to a throwaway
// database or the tests skip. Unlike that suite these go through the echo
// handler, since the creator-only redemption rule lives there.

type redemptionFixture struct {
	db          *sql.DB
	accounts    *repository.AccountRepo
	collections *repository.CollectionRepo
	tickets     *repository.TicketRepo
	handler     *TicketHandler
}

func newRedemptionFixture(t *testing.T) *redemptionFixture {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping MySQL integration tests")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { _ = db.Close() })

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

	f := &redemptionFixture{
		db:          db,
		accounts:    repository.NewAccountRepo(db),
		collections: repository.NewCollectionRepo(db),
		tickets:     repository.NewTicketRepo(db),
	}
	f.handler = NewTicketHandler(f.tickets, f.collections, f.accounts)
	return f
}

func (f *redemptionFixture) account(t *testing.T, email string) uint64 {
	t.Helper()
	id, err := f.accounts.Create(context.Background(), email, "secret", 4)
	require.NoError(t, err)
	return id
}

func (f *redemptionFixture) mint(t *testing.T, collectionID uint64, serial uint32, holderID uint64, holderName string) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = f.tickets.MintTx(ctx, tx, collectionID, serial, holderID, holderName, time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.collections.IncrementMintedTx(ctx, tx, collectionID))
	require.NoError(t, tx.Commit())
}

// redeem drives the handler exactly as the router would: path params from
// the route, account id from the auth middleware.
func (f *redemptionFixture) redeem(t *testing.T, callerID, collectionID uint64, serial uint32) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "serial")
	c.SetParamValues(strconv.FormatUint(collectionID, 10), strconv.FormatUint(uint64(serial), 10))
	c.Set("account_id", callerID)
	require.NoError(t, f.handler.SetUsed(c))
	return rec
}

func TestSetUsedCreatorOnly(t *testing.T) {
	f := newRedemptionFixture(t)
	ctx := context.Background()

	creator := f.account(t, "venue@test.local")
	holder := f.account(t, "holder@test.local")
	stranger := f.account(t, "stranger@test.local")

	colID, err := f.collections.Create(ctx, "Warehouse Night", 100, 10, creator)
	require.NoError(t, err)
	f.mint(t, colID, 1, holder, "Alice")

	// The holder presents the ticket but cannot consume it.
	rec := f.redeem(t, holder, colID, 1)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.redeem(t, stranger, colID, 1)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tk, err := f.tickets.Get(ctx, colID, 1)
	require.NoError(t, err)
	assert.False(t, tk.Used)

	// The venue redeems, exactly once.
	rec = f.redeem(t, creator, colID, 1)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"used":true`)

	tk, err = f.tickets.Get(ctx, colID, 1)
	require.NoError(t, err)
	assert.True(t, tk.Used)

	rec = f.redeem(t, creator, colID, 1)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetUsedExpiredTicket(t *testing.T) {
	f := newRedemptionFixture(t)
	ctx := context.Background()

	creator := f.account(t, "venue@test.local")
	holder := f.account(t, "holder@test.local")

	colID, err := f.collections.Create(ctx, "Warehouse Night", 100, 10, creator)
	require.NoError(t, err)
	f.mint(t, colID, 1, holder, "Alice")

	_, err = f.db.Exec("UPDATE tickets SET expires_at = '2000-01-01 00:00:00' WHERE collection_id = ? AND serial = ?", colID, 1)
	require.NoError(t, err)

	rec := f.redeem(t, creator, colID, 1)
	assert.Equal(t, http.StatusGone, rec.Code)

	tk, err := f.tickets.Get(ctx, colID, 1)
	require.NoError(t, err)
	assert.False(t, tk.Used)
}
