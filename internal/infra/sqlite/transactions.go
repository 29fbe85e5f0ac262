package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Transaction Log Operations ─────────────────────────────────────────────

const txColumns = `tx_id, type, from_hash, to_hash, amount, status, title, description, metadata, created_at, completed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var completed sql.NullInt64
	err := row.Scan(&t.TxID, &t.Type, &t.FromHash, &t.ToHash, &t.Amount,
		&t.Status, &t.Title, &t.Description, &t.Metadata, &t.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t.CompletedAt = domain.Timestamp(completed.Int64)
	}
	return &t, nil
}

// InsertTransaction appends a ledger entry. Entries born completed (mints,
// transfers, redeems) are stamped completed_at here; escrowed entries get
// theirs from SetTransactionStatus on settlement.
func (s queries) InsertTransaction(t *domain.Transaction) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = now()
	}
	if t.Status == domain.TxCompleted && t.CompletedAt == 0 {
		t.CompletedAt = t.CreatedAt
	}
	var completed any
	if t.CompletedAt != 0 {
		completed = t.CompletedAt
	}
	_, err := s.q.Exec(`
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TxID, t.Type, t.FromHash, t.ToHash, t.Amount, t.Status,
		t.Title, t.Description, t.Metadata, t.CreatedAt, completed)
	return err
}

// GetTransaction loads one ledger entry or domain.ErrNotFound.
func (s queries) GetTransaction(txID string) (*domain.Transaction, error) {
	return scanTransaction(s.q.QueryRow(
		`SELECT `+txColumns+` FROM transactions WHERE tx_id = ?`, txID))
}

// SetTransactionStatus drives the pending→completed/cancelled transition,
// guarded by the expected source status so concurrent workflows cannot
// double-settle. Returns false when the row was not in the expected state.
func (s queries) SetTransactionStatus(txID string, from, to domain.TxStatus) (bool, error) {
	var completed any
	if to == domain.TxCompleted {
		completed = now()
	}
	res, err := s.q.Exec(`
		UPDATE transactions SET status = ?, completed_at = ?
		WHERE tx_id = ? AND status = ?
	`, to, completed, txID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListTransactionsFor returns the wallet's ledger entries, newest first.
func (s queries) ListTransactionsFor(userHash string, offset, limit int) ([]domain.Transaction, int64, error) {
	var total int64
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM transactions WHERE from_hash = ? OR to_hash = ?
	`, userHash, userHash).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`
		SELECT `+txColumns+` FROM transactions
		WHERE from_hash = ? OR to_hash = ?
		ORDER BY created_at DESC, tx_id DESC
		LIMIT ? OFFSET ?
	`, userHash, userHash, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *t)
	}
	return result, total, rows.Err()
}
