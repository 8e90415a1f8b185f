package model

import "time"

// Wallet is an account's balance in the value ledger used as the payment
// medium. Balances are unsigned integer token units; all fee arithmetic is
// integer floor division so no fractional units exist anywhere.
type Wallet struct {
	AccountID uint64    // wallets.account_id
	Balance   uint64    // wallets.balance
	UpdatedAt time.Time // wallets.updated_at
}

// Allowance is the amount a spender may pull from an owner's wallet via
// transferFrom. The exchange's system account is the spender for both
// primary-sale purchases and resale bids, so a client grants one allowance
// target for the whole marketplace.
type Allowance struct {
	OwnerID   uint64    // allowances.owner_id
	SpenderID uint64    // allowances.spender_id
	Amount    uint64    // allowances.amount
	UpdatedAt time.Time // allowances.updated_at
}
