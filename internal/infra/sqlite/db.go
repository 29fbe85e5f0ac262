// Package sqlite is the persistence layer for the credit ledger.
// One SQLite file holds wallets, the transaction log, tasks, the
// marketplace, reports, recovery cases and redeem codes.
//
// Every multi-step business mutation runs inside WithTx so the balance
// mutation and its ledger/state rows commit or roll back as one unit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"

	"github.com/yourtongji/creditd/internal/domain"
)

// SQLite extended result codes for constraint failures.
const (
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
	codeConstraintCheck      = 275
)

// DB wraps the SQLite connection and exposes typed store operations.
// Read paths are served directly; mutations that span statements go
// through WithTx.
type DB struct {
	queries
	db *sql.DB
}

// Tx is a transaction-scoped view with the same store operations.
type Tx struct {
	queries
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// queries hosts every store method; embedding promotes them onto DB and Tx.
type queries struct {
	q execer
}

// Open opens (creating if necessary) the ledger database at path and
// applies the schema. The schema-ensure contract: this must complete before
// the first query, and it is idempotent.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single writer connection avoids
	// SQLITE_BUSY churn under concurrent settlement.
	sdb.SetMaxOpenConns(1)

	db := &DB{queries: queries{q: sdb}, db: sdb}
	if err := db.migrate(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// WithTx runs fn inside a single database transaction. Any error rolls the
// whole unit back — no partial application of balance mutations.
func (db *DB) WithTx(fn func(tx *Tx) error) error {
	stx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{queries{q: stx}}); err != nil {
		if rbErr := stx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return stx.Commit()
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Wallets — balance is authoritative and guarded non-negative at
		// the storage layer too.
		`CREATE TABLE IF NOT EXISTS wallets (
			user_hash      TEXT PRIMARY KEY,
			user_secret    TEXT NOT NULL DEFAULT '',
			balance        INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
			created_at     INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL
		)`,

		// Transaction log — append-only.
		`CREATE TABLE IF NOT EXISTS transactions (
			tx_id        TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			from_hash    TEXT NOT NULL DEFAULT '',
			to_hash      TEXT NOT NULL DEFAULT '',
			amount       INTEGER NOT NULL CHECK(amount > 0),
			status       TEXT NOT NULL DEFAULT 'pending',
			title        TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			metadata     TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_from ON transactions(from_hash, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_to ON transactions(to_hash, created_at DESC)`,

		// Task bounties
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id       TEXT PRIMARY KEY,
			creator_hash  TEXT NOT NULL,
			acceptor_hash TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			reward_amount INTEGER NOT NULL CHECK(reward_amount > 0),
			contact_info  TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'open',
			created_at    INTEGER NOT NULL,
			accepted_at   INTEGER,
			submitted_at  INTEGER,
			completed_at  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_status ON tasks(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_task_creator ON tasks(creator_hash)`,

		// Marketplace products
		`CREATE TABLE IF NOT EXISTS products (
			product_id  TEXT PRIMARY KEY,
			seller_hash TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       INTEGER NOT NULL CHECK(price > 0),
			stock       INTEGER NOT NULL CHECK(stock >= 0),
			status      TEXT NOT NULL DEFAULT 'available',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_status ON products(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_product_seller ON products(seller_hash)`,

		// Purchases (escrow state machine)
		`CREATE TABLE IF NOT EXISTS purchases (
			purchase_id TEXT PRIMARY KEY,
			product_id  TEXT NOT NULL,
			buyer_hash  TEXT NOT NULL,
			seller_hash TEXT NOT NULL,
			amount      INTEGER NOT NULL CHECK(amount > 0),
			quantity    INTEGER NOT NULL CHECK(quantity > 0),
			tx_id       TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_buyer ON purchases(buyer_hash, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_seller ON purchases(seller_hash, created_at DESC)`,

		// Reports — one per (target, reporter) pair.
		`CREATE TABLE IF NOT EXISTS reports (
			report_id     TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			target_id     TEXT NOT NULL,
			reporter_hash TEXT NOT NULL,
			type          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			admin_note    TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			resolved_at   INTEGER,
			UNIQUE(target_id, reporter_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_status ON reports(status, created_at DESC)`,

		// Recovery cases
		`CREATE TABLE IF NOT EXISTS recovery_cases (
			case_id       TEXT PRIMARY KEY,
			report_id     TEXT NOT NULL,
			victim_hash   TEXT NOT NULL,
			offender_hash TEXT NOT NULL,
			amount        INTEGER NOT NULL CHECK(amount > 0),
			status        TEXT NOT NULL DEFAULT 'open',
			created_at    INTEGER NOT NULL,
			resolved_at   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recovery_status ON recovery_cases(status)`,

		// Redeem codes + at-most-once redemptions per (code, user).
		`CREATE TABLE IF NOT EXISTS redeem_codes (
			code       TEXT PRIMARY KEY,
			value      INTEGER NOT NULL CHECK(value > 0),
			max_uses   INTEGER NOT NULL CHECK(max_uses > 0),
			used_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS redemptions (
			code        TEXT NOT NULL,
			user_hash   TEXT NOT NULL,
			redeemed_at INTEGER NOT NULL,
			PRIMARY KEY (code, user_hash)
		)`,
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// IsConstraint reports whether err is a uniqueness/PK constraint failure.
// Used to turn concurrent duplicate inserts into domain conflicts instead of
// opaque driver errors.
func IsConstraint(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case codeConstraintPrimaryKey, codeConstraintUnique:
			return true
		}
	}
	return false
}

// IsCheckViolation reports whether err tripped a CHECK constraint
// (e.g. the non-negative balance floor).
func IsCheckViolation(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code() == codeConstraintCheck
}

func now() domain.Timestamp { return domain.Now() }

// UserSecret resolves a wallet's signing secret for request verification.
// Satisfies auth.SecretSource.
func (db *DB) UserSecret(ctx context.Context, userHash string) (string, error) {
	var secret string
	err := db.db.QueryRowContext(ctx,
		`SELECT user_secret FROM wallets WHERE user_hash = ?`, userHash).Scan(&secret)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	return secret, err
}
