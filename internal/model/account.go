package model

import "time"

// Account represents a row in the `accounts` table. Every caller of the
// registry and exchange is an account; the special SYSTEM account owned by
// the exchange holds tickets and funds in custody during auctions. Account
// id 0 is never issued and serves as the "no account" sentinel in API
// responses (stored as NULL in the database).
//
// Fields:
//
//	ID           – primary key identifier of the account.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – TRADER for end users, SYSTEM for the exchange custodian.
//	IsActive     – whether the account is active.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type Account struct {
	ID           uint64    // accounts.id
	Email        string    // accounts.email
	PasswordHash string    // accounts.password_hash
	Role         string    // accounts.role
	IsActive     bool      // accounts.is_active
	CreatedAt    time.Time // accounts.created_at
	UpdatedAt    time.Time // accounts.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Each refresh
// token belongs to an account and contains metadata for expiry and
// revocation. The plain token is not stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	AccountID uint64     // refresh_tokens.account_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
