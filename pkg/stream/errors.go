package stream

import "errors"

var (
	// ErrInsufficientFunds means the payer's balance cannot cover the escrow
	// deposit. No write is submitted.
	ErrInsufficientFunds = errors.New("insufficient funds for stream deposit")

	// ErrLedgerUnavailable means a ledger write could not be submitted or was
	// rejected before commitment. Funds did not move.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrLedgerAmbiguous means a write was submitted but its confirmation is
	// unknown (timeout while waiting for the receipt). Funds may already be
	// committed; callers must surface this distinctly.
	ErrLedgerAmbiguous = errors.New("ledger write submitted but unconfirmed")
)
