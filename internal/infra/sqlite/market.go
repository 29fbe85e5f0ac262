package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Product Operations ─────────────────────────────────────────────────────

const productColumns = `product_id, seller_hash, title, description, price, stock, status, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ProductID, &p.SellerHash, &p.Title, &p.Description,
		&p.Price, &p.Stock, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProduct creates a marketplace listing.
func (s queries) InsertProduct(p *domain.Product) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = now()
	}
	_, err := s.q.Exec(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ProductID, p.SellerHash, p.Title, p.Description, p.Price, p.Stock, p.Status, p.CreatedAt)
	return err
}

// GetProduct loads one product or domain.ErrNotFound.
func (s queries) GetProduct(productID string) (*domain.Product, error) {
	return scanProduct(s.q.QueryRow(`SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID))
}

// TakeStock atomically decrements stock by qty with a floor check — the
// concurrent last-unit race resolves to exactly one winner. Marks the
// product sold_out when stock hits zero. Returns false when stock or
// availability was insufficient.
func (s queries) TakeStock(productID string, qty int64) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE products SET stock = stock - ?
		WHERE product_id = ? AND status = ? AND stock >= ?
	`, qty, productID, domain.ProductAvailable, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	_, err = s.q.Exec(`
		UPDATE products SET status = ? WHERE product_id = ? AND stock = 0 AND status = ?
	`, domain.ProductSoldOut, productID, domain.ProductAvailable)
	return true, err
}

// RestoreStock returns qty units (buyer cancel), reviving sold_out listings.
func (s queries) RestoreStock(productID string, qty int64) error {
	_, err := s.q.Exec(`
		UPDATE products SET stock = stock + ?,
			status = CASE WHEN status = ? THEN ? ELSE status END
		WHERE product_id = ?
	`, qty, domain.ProductSoldOut, domain.ProductAvailable, productID)
	return err
}

// SetProductStatus updates a listing's status (seller removal, admin
// take_down). Returns false when the product does not exist.
func (s queries) SetProductStatus(productID string, status domain.ProductStatus) (bool, error) {
	res, err := s.q.Exec(`UPDATE products SET status = ? WHERE product_id = ?`, status, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListProducts returns listings filtered by status ('' for all), newest first.
func (s queries) ListProducts(status domain.ProductStatus, offset, limit int) ([]domain.Product, int64, error) {
	where, args := "", []any{}
	if status != "" {
		where = ` WHERE status = ?`
		args = append(args, status)
	}

	var total int64
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`SELECT `+productColumns+` FROM products`+where+`
		ORDER BY created_at DESC, product_id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
	}
	return result, total, rows.Err()
}

// ─── Purchase Operations ────────────────────────────────────────────────────

const purchaseColumns = `purchase_id, product_id, buyer_hash, seller_hash, amount, quantity, tx_id, status, created_at, updated_at`

func scanPurchase(row interface{ Scan(...any) error }) (*domain.Purchase, error) {
	var p domain.Purchase
	err := row.Scan(&p.PurchaseID, &p.ProductID, &p.BuyerHash, &p.SellerHash,
		&p.Amount, &p.Quantity, &p.TxID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPurchase records a new escrowed purchase.
func (s queries) InsertPurchase(p *domain.Purchase) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = now()
	}
	p.UpdatedAt = p.CreatedAt
	_, err := s.q.Exec(`
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PurchaseID, p.ProductID, p.BuyerHash, p.SellerHash, p.Amount,
		p.Quantity, p.TxID, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetPurchase loads one purchase or domain.ErrNotFound.
func (s queries) GetPurchase(purchaseID string) (*domain.Purchase, error) {
	return scanPurchase(s.q.QueryRow(`SELECT `+purchaseColumns+` FROM purchases WHERE purchase_id = ?`, purchaseID))
}

// SetPurchaseStatus drives a transition guarded by the expected source
// state. Returns false on a state mismatch.
func (s queries) SetPurchaseStatus(purchaseID string, from, to domain.PurchaseStatus) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE purchases SET status = ?, updated_at = ?
		WHERE purchase_id = ? AND status = ?
	`, to, now(), purchaseID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPurchasesFor returns purchases where the wallet is buyer or seller.
func (s queries) ListPurchasesFor(userHash string, offset, limit int) ([]domain.Purchase, int64, error) {
	var total int64
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM purchases WHERE buyer_hash = ? OR seller_hash = ?
	`, userHash, userHash).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`
		SELECT `+purchaseColumns+` FROM purchases
		WHERE buyer_hash = ? OR seller_hash = ?
		ORDER BY created_at DESC, purchase_id DESC LIMIT ? OFFSET ?
	`, userHash, userHash, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
	}
	return result, total, rows.Err()
}
