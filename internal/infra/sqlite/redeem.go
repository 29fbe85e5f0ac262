package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Redeem Code Operations ─────────────────────────────────────────────────

// InsertRedeemCode issues a new voucher. Constraint failures (duplicate
// code) map to domain.ErrConflict.
func (s queries) InsertRedeemCode(c *domain.RedeemCode) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = now()
	}
	_, err := s.q.Exec(`
		INSERT INTO redeem_codes (code, value, max_uses, used_count, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, c.Code, c.Value, c.MaxUses, c.CreatedAt)
	if IsConstraint(err) {
		return domain.ErrConflict
	}
	return err
}

// GetRedeemCode loads one code or domain.ErrNotFound.
func (s queries) GetRedeemCode(code string) (*domain.RedeemCode, error) {
	var c domain.RedeemCode
	err := s.q.QueryRow(`
		SELECT code, value, max_uses, used_count, created_at
		FROM redeem_codes WHERE code = ?
	`, code).Scan(&c.Code, &c.Value, &c.MaxUses, &c.UsedCount, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertRedemption records the at-most-once (code, user) join row. The
// primary key makes a concurrent second redemption fail here, not at a
// pre-check; constraint failures map to domain.ErrAlreadyRedeemed.
func (s queries) InsertRedemption(code, userHash string) error {
	_, err := s.q.Exec(`
		INSERT INTO redemptions (code, user_hash, redeemed_at) VALUES (?, ?, ?)
	`, code, userHash, now())
	if IsConstraint(err) {
		return domain.ErrAlreadyRedeemed
	}
	return err
}

// ConsumeRedeemCodeUse increments used_count, guarded by max_uses so two
// concurrent redemptions cannot overshoot. Returns false when exhausted.
func (s queries) ConsumeRedeemCodeUse(code string) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE redeem_codes SET used_count = used_count + 1
		WHERE code = ? AND used_count < max_uses
	`, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
