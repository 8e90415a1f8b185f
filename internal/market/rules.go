// Package market holds the pure resale-auction rules: fee arithmetic, bid
// comparison and ticket staleness. Keeping them free of SQL makes the
// invariants directly testable.
package market

import "time"

// FeeSplit divides a settlement amount between the exchange and the seller.
// The fee is floor(amount * feePercent / 100); the payout is the remainder,
// so fee + payout always equals amount exactly. The split is computed on
// the quotient and remainder separately so amount*feePercent cannot wrap
// a uint64 for any amount.
func FeeSplit(amount uint64, feePercent int) (fee, payout uint64) {
	fp := uint64(feePercent)
	fee = amount/100*fp + amount%100*fp/100
	payout = amount - fee
	return fee, payout
}

// OutbidsCurrent reports whether an offered amount beats the current
// highest bid. Equal amounts do not outbid.
func OutbidsCurrent(current, offered uint64) bool {
	return offered > current
}

// ExpiredOrUsed reports whether a ticket can no longer be traded: either
// it has been consumed at the venue, or its validity window has passed.
// Expiry is strict, a ticket at exactly its expiry instant is still valid.
func ExpiredOrUsed(expiresAt time.Time, used bool, now time.Time) bool {
	return used || now.After(expiresAt)
}
