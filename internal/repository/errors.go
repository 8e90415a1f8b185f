// Package repository defines error values that are reused across multiple
// repositories. These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios and translate each one
// into a distinct HTTP response: authorization failures, missing entities,
// state conflicts, staleness, auction-rule violations and ledger failures
// all surface as separate kinds rather than a generic error.
package repository

import "errors"

// ErrUnauthorized is returned when the caller lacks the role, ownership or
// approval required for an operation (e.g. transferring a ticket without
// being its holder or approved transferee, accepting a bid on someone
// else's listing). Handlers translate this into HTTP 403.
var ErrUnauthorized = errors.New("unauthorized")

// ErrCollectionNotFound is returned when a referenced collection id does
// not exist. This is the "invalid registry" case: the exchange refuses to
// operate on handles that are not in the registry of registries.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrTicketNotFound is returned when a ticket serial is outside the minted
// range of its collection.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrAccountNotFound is returned when a referenced account does not exist,
// for example when approving an unknown transferee.
var ErrAccountNotFound = errors.New("account not found")

// ErrOwnershipMismatch is returned by transfers when the `from` account is
// not the ticket's current holder.
var ErrOwnershipMismatch = errors.New("ownership mismatch")

// ErrInvalidRecipient is returned when an operation names the zero-account
// sentinel where a real account is required (approve target, transfer
// destination).
var ErrInvalidRecipient = errors.New("invalid recipient")

// ErrCapacityExceeded is returned when minting would exceed the
// collection's fixed cap.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrAlreadyUsed is returned when setUsed hits a ticket whose used flag is
// already set. The flag is one-way and can never be cleared.
var ErrAlreadyUsed = errors.New("ticket already used")

// ErrExpired is returned when an operation requires a live ticket but the
// ticket is past its expiry or already used.
var ErrExpired = errors.New("ticket expired or used")

// ErrAlreadyListed is returned when listing a ticket that already has an
// active listing on the exchange.
var ErrAlreadyListed = errors.New("ticket already listed")

// ErrNotListed is returned when a bid, acceptance, delist or highest-bid
// read references a key with no active listing.
var ErrNotListed = errors.New("ticket not listed")

// ErrBidTooLow is returned when a bid does not strictly exceed the current
// highest amount. Ties are rejected.
var ErrBidTooLow = errors.New("bid too low")

// ErrSelfBid is returned when the listing's original owner bids on their
// own listing.
var ErrSelfBid = errors.New("cannot bid on own listing")

// ErrAllowanceTooLow is returned when a transferFrom pull exceeds the
// allowance the owner granted the spender.
var ErrAllowanceTooLow = errors.New("allowance too low")

// ErrTransferFailed is returned when a ledger movement cannot complete,
// typically because the debited wallet holds insufficient funds.
var ErrTransferFailed = errors.New("transfer failed")

// ErrEmailExists is returned when registering an account with an email that
// is already taken.
var ErrEmailExists = errors.New("email already exists")
