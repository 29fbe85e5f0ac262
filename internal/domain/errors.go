package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. The API boundary
// maps each of these to a stable error code exactly once.

var (
	// Request / entity errors
	ErrValidation = errors.New("missing or malformed field")
	ErrNotFound   = errors.New("entity not found")
	ErrConflict   = errors.New("conflicting operation")

	// Authentication errors
	ErrUnauthorized = errors.New("missing or invalid signature")
	ErrUnverifiable = errors.New("wallet has no signing secret bound")

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")

	// State machine errors
	ErrInvalidState = errors.New("entity not in expected state for transition")

	// Marketplace / redeem errors
	ErrExhausted       = errors.New("stock or code uses exhausted")
	ErrDuplicateReport = errors.New("report already filed for this target")
	ErrAlreadyRedeemed = errors.New("code already redeemed by this wallet")
)
