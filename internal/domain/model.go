// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// ─── Wallet ─────────────────────────────────────────────────────────────────

// Wallet is a credit account. UserHash is the stable, client-derived
// identifier (64-hex fingerprint); UserSecret is the shared HMAC signing key.
// Balance is authoritative and mutated only by the ledger.
type Wallet struct {
	UserHash     string    `json:"user_hash"`
	UserSecret   string    `json:"-"`
	Balance      int64     `json:"balance"`
	CreatedAt    Timestamp `json:"created_at"`
	LastActiveAt Timestamp `json:"last_active_at"`
}

// ─── Task ───────────────────────────────────────────────────────────────────

// TaskStatus is the lifecycle state of a task bounty.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskSubmitted  TaskStatus = "submitted"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskRejected   TaskStatus = "rejected"
)

// Task is a bounty posted by a creator and worked by an acceptor.
// ContactInfo is visible only to the creator and, post-acceptance, the acceptor.
type Task struct {
	TaskID       string     `json:"task_id"`
	CreatorHash  string     `json:"creator_user_hash"`
	AcceptorHash string     `json:"acceptor_user_hash,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	RewardAmount int64      `json:"reward_amount"`
	ContactInfo  string     `json:"contact_info,omitempty"`
	Status       TaskStatus `json:"status"`
	CreatedAt    Timestamp  `json:"created_at"`
	AcceptedAt   Timestamp  `json:"accepted_at,omitempty"`
	SubmittedAt  Timestamp  `json:"submitted_at,omitempty"`
	CompletedAt  Timestamp  `json:"completed_at,omitempty"`
}

// ─── Product & Purchase ─────────────────────────────────────────────────────

// ProductStatus is the listing state of a marketplace product.
type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductSoldOut   ProductStatus = "sold_out"
	ProductRemoved   ProductStatus = "removed"
)

// Product is a marketplace listing owned by a seller.
type Product struct {
	ProductID   string        `json:"product_id"`
	SellerHash  string        `json:"seller_user_hash"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       int64         `json:"price"`
	Stock       int64         `json:"stock"`
	Status      ProductStatus `json:"status"`
	CreatedAt   Timestamp     `json:"created_at"`
}

// PurchaseStatus is the escrow state of a purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseAccepted  PurchaseStatus = "accepted"
	PurchaseDelivered PurchaseStatus = "delivered"
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseDisputed  PurchaseStatus = "disputed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// Purchase binds a buyer to a product. The buyer is debited at creation
// (escrow); the seller is credited only on buyer confirmation.
type Purchase struct {
	PurchaseID string         `json:"purchase_id"`
	ProductID  string         `json:"product_id"`
	BuyerHash  string         `json:"buyer_user_hash"`
	SellerHash string         `json:"seller_user_hash"`
	Amount     int64          `json:"amount"`
	Quantity   int64          `json:"quantity"`
	TxID       string         `json:"tx_id"`
	Status     PurchaseStatus `json:"status"`
	CreatedAt  Timestamp      `json:"created_at"`
	UpdatedAt  Timestamp      `json:"updated_at"`
}

// ─── Report & Recovery ──────────────────────────────────────────────────────

// ReportKind distinguishes what a report targets.
type ReportKind string

const (
	ReportTransaction ReportKind = "transaction"
	ReportContent     ReportKind = "content"
)

// ReportType distinguishes an appeal from a third-party report.
type ReportType string

const (
	ReportTypeAppeal ReportType = "appeal"
	ReportTypeReport ReportType = "report"
)

// ReportStatus is the adjudication state of a report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportReviewing  ReportStatus = "reviewing"
	ReportResolved   ReportStatus = "resolved"
	ReportRejected   ReportStatus = "rejected"
	ReportTakeDown   ReportStatus = "take_down"
	ReportCompensate ReportStatus = "compensate"
)

// Report is a user-filed complaint against a transaction or a content entity.
// At most one report exists per (target, reporter) pair.
type Report struct {
	ReportID     string       `json:"report_id"`
	Kind         ReportKind   `json:"kind"`
	TargetID     string       `json:"target_id"`
	ReporterHash string       `json:"reporter_user_hash"`
	Type         ReportType   `json:"type"`
	Description  string       `json:"description"`
	Status       ReportStatus `json:"status"`
	AdminNote    string       `json:"admin_note,omitempty"`
	CreatedAt    Timestamp    `json:"created_at"`
	ResolvedAt   Timestamp    `json:"resolved_at,omitempty"`
}

// RecoveryStatus is the clawback state of a recovery case.
type RecoveryStatus string

const (
	RecoveryOpen      RecoveryStatus = "open"
	RecoveryRecovered RecoveryStatus = "recovered"
	RecoveryClosed    RecoveryStatus = "closed"
)

// RecoveryCase tracks clawback of funds from an offender after the victim
// has already been compensated from system funds.
type RecoveryCase struct {
	CaseID       string         `json:"case_id"`
	ReportID     string         `json:"report_id"`
	VictimHash   string         `json:"victim_user_hash"`
	OffenderHash string         `json:"offender_user_hash"`
	Amount       int64          `json:"amount"`
	Status       RecoveryStatus `json:"status"`
	CreatedAt    Timestamp      `json:"created_at"`
	ResolvedAt   Timestamp      `json:"resolved_at,omitempty"`
}

// ─── Redeem Code ────────────────────────────────────────────────────────────

// RedeemCode is a pre-issued, limited-use credit voucher.
type RedeemCode struct {
	Code      string    `json:"code"`
	Value     int64     `json:"value"`
	MaxUses   int64     `json:"max_uses"`
	UsedCount int64     `json:"used_count"`
	CreatedAt Timestamp `json:"created_at"`
}

// Redemption is the at-most-once join row between a code and a wallet.
type Redemption struct {
	Code       string    `json:"code"`
	UserHash   string    `json:"user_hash"`
	RedeemedAt Timestamp `json:"redeemed_at"`
}

// ─── Pagination ─────────────────────────────────────────────────────────────

// Page is the standard pagination envelope returned by every list endpoint.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"total_pages"`
}

// Pagination bounds. Limits above the maximum are clamped, not rejected.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ClampPage normalizes pagination parameters and returns the row offset.
func ClampPage(page, limit int) (offset, p, l int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return (page - 1) * limit, page, limit
}

// NewPage builds the envelope, computing total_pages from total and limit.
func NewPage[T any](data []T, total int64, page, limit int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Page[T]{Data: data, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// SHA256Hex computes SHA-256 and returns the hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ValidUserHash reports whether s looks like a client-derived wallet
// fingerprint: exactly 64 lowercase hex characters.
func ValidUserHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
