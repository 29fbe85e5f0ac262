package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Wallet Operations ──────────────────────────────────────────────────────

// UpsertWallet registers a wallet idempotently. Re-registering an existing
// hash backfills a missing secret but never overwrites the balance or an
// already-bound secret. Returns true when the row was newly created.
// Callers run this inside WithTx, so the read-then-write is atomic.
func (s queries) UpsertWallet(userHash, userSecret string) (bool, error) {
	ts := now()
	var one int
	err := s.q.QueryRow(`SELECT 1 FROM wallets WHERE user_hash = ?`, userHash).Scan(&one)
	if err == sql.ErrNoRows {
		_, err = s.q.Exec(`
			INSERT INTO wallets (user_hash, user_secret, balance, created_at, last_active_at)
			VALUES (?, ?, 0, ?, ?)
		`, userHash, userSecret, ts, ts)
		if err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	_, err = s.q.Exec(`
		UPDATE wallets SET
			user_secret    = CASE WHEN user_secret = '' THEN ? ELSE user_secret END,
			last_active_at = ?
		WHERE user_hash = ?
	`, userSecret, ts, userHash)
	return false, err
}

// GetWallet loads a wallet or domain.ErrNotFound.
func (s queries) GetWallet(userHash string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.q.QueryRow(`
		SELECT user_hash, user_secret, balance, created_at, last_active_at
		FROM wallets WHERE user_hash = ?
	`, userHash).Scan(&w.UserHash, &w.UserSecret, &w.Balance, &w.CreatedAt, &w.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreditWallet adds amount to a wallet's balance and touches last_active_at.
// Returns domain.ErrNotFound when the wallet does not exist.
func (s queries) CreditWallet(userHash string, amount int64) error {
	res, err := s.q.Exec(`
		UPDATE wallets SET balance = balance + ?, last_active_at = ?
		WHERE user_hash = ?
	`, amount, now(), userHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DebitWalletIf conditionally subtracts amount, but only when the balance
// covers it ("decrement if balance >= amount", never read-then-write).
// Returns false when the wallet is missing or the balance is short — the
// caller distinguishes the two if it needs to.
func (s queries) DebitWalletIf(userHash string, amount int64) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE wallets SET balance = balance - ?, last_active_at = ?
		WHERE user_hash = ? AND balance >= ?
	`, amount, now(), userHash, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// WalletExists reports whether a wallet row exists.
func (s queries) WalletExists(userHash string) (bool, error) {
	var one int
	err := s.q.QueryRow(`SELECT 1 FROM wallets WHERE user_hash = ?`, userHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
