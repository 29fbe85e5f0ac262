// Package escrow governs the multi-party purchase and task lifecycles.
// Funds for a purchase are debited from the buyer at creation and held by
// the ledger; the seller is credited only on buyer confirmation. Task
// rewards move only on the creator's confirm. Every transition checks both
// the caller's role for that edge and the exact source state.
package escrow

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

// Service runs the purchase and task state machines.
type Service struct {
	db  *sqlite.DB
	log *slog.Logger
}

// NewService creates the escrow service.
func NewService(db *sqlite.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log}
}

// ─── Products ───────────────────────────────────────────────────────────────

// CreateProduct lists a product for sale.
func (s *Service) CreateProduct(sellerHash, title, description string, price, stock int64) (*domain.Product, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title required", domain.ErrValidation)
	}
	if price <= 0 || stock <= 0 {
		return nil, fmt.Errorf("%w: price and stock must be positive", domain.ErrValidation)
	}
	p := &domain.Product{
		ProductID:   uuid.NewString(),
		SellerHash:  sellerHash,
		Title:       title,
		Description: description,
		Price:       price,
		Stock:       stock,
		Status:      domain.ProductAvailable,
	}
	if err := s.db.InsertProduct(p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveProduct takes a listing off the market. Seller-only.
func (s *Service) RemoveProduct(callerHash, productID string) error {
	p, err := s.db.GetProduct(productID)
	if err != nil {
		return err
	}
	if p.SellerHash != callerHash {
		return fmt.Errorf("%w: only the seller can remove a listing", domain.ErrInvalidState)
	}
	if p.Status == domain.ProductRemoved {
		return fmt.Errorf("%w: already removed", domain.ErrInvalidState)
	}
	_, err = s.db.SetProductStatus(productID, domain.ProductRemoved)
	return err
}

// Products returns listings visible to buyers (available only).
func (s *Service) Products(page, limit int) (domain.Page[domain.Product], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	items, total, err := s.db.ListProducts(domain.ProductAvailable, offset, limit)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}

// ─── Purchases ──────────────────────────────────────────────────────────────

// Purchase escrows a buy: atomically takes stock, debits the buyer, and
// records the pending purchase plus its pending ledger entry.
func (s *Service) Purchase(buyerHash, productID string, quantity int64) (*domain.Purchase, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	product, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if product.SellerHash == buyerHash {
		return nil, fmt.Errorf("%w: cannot buy own listing", domain.ErrConflict)
	}
	if product.Status == domain.ProductRemoved {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}

	amount := product.Price * quantity
	p := &domain.Purchase{
		PurchaseID: uuid.NewString(),
		ProductID:  productID,
		BuyerHash:  buyerHash,
		SellerHash: product.SellerHash,
		Amount:     amount,
		Quantity:   quantity,
		TxID:       uuid.NewString(),
		Status:     domain.PurchasePending,
	}
	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.TakeStock(productID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: out of stock", domain.ErrExhausted)
		}
		if err := ledger.DebitTx(tx, buyerHash, amount); err != nil {
			return err
		}
		if err := tx.InsertTransaction(&domain.Transaction{
			TxID:     p.TxID,
			Type:     domain.TxProductPurchase,
			FromHash: buyerHash,
			ToHash:   product.SellerHash,
			Amount:   amount,
			Status:   domain.TxPending,
			Title:    product.Title,
			Metadata: fmt.Sprintf(`{"product_id":%q,"quantity":%d}`, productID, quantity),
		}); err != nil {
			return err
		}
		return tx.InsertPurchase(p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase escrowed", "purchase", p.PurchaseID, "buyer", buyerHash, "amount", amount)
	return p, nil
}

// AcceptPurchase: seller acknowledges the order. pending → accepted.
func (s *Service) AcceptPurchase(callerHash, purchaseID string) error {
	return s.advancePurchase(callerHash, purchaseID, roleSeller, domain.PurchasePending, domain.PurchaseAccepted)
}

// DeliverPurchase: seller marks delivery. accepted → delivered.
func (s *Service) DeliverPurchase(callerHash, purchaseID string) error {
	return s.advancePurchase(callerHash, purchaseID, roleSeller, domain.PurchaseAccepted, domain.PurchaseDelivered)
}

// ConfirmPurchase settles the escrow: delivered → confirmed, seller
// credited and the pending ledger entry completed, atomically.
func (s *Service) ConfirmPurchase(callerHash, purchaseID string) error {
	p, err := s.db.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	if p.BuyerHash != callerHash {
		return fmt.Errorf("%w: only the buyer confirms", domain.ErrInvalidState)
	}
	if !p.Status.CanTransition(domain.PurchaseConfirmed) {
		return fmt.Errorf("%w: purchase is %s", domain.ErrInvalidState, p.Status)
	}

	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.SetPurchaseStatus(purchaseID, domain.PurchaseDelivered, domain.PurchaseConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: purchase is no longer delivered", domain.ErrInvalidState)
		}
		if err := tx.CreditWallet(p.SellerHash, p.Amount); err != nil {
			return err
		}
		ok, err = tx.SetTransactionStatus(p.TxID, domain.TxPending, domain.TxCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: escrow transaction already settled", domain.ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		return err
	}

	observability.RecordMovement(string(domain.TxProductPurchase), p.Amount)
	s.log.Info("purchase settled", "purchase", purchaseID, "seller", p.SellerHash, "amount", p.Amount)
	return nil
}

// CancelPurchase: buyer backs out while the order is still pending.
// Refunds the escrow, restores stock, cancels the pending ledger entry.
// Once the seller has accepted, only delivery progression or an
// admin-mediated report can alter the purchase.
func (s *Service) CancelPurchase(callerHash, purchaseID string) error {
	p, err := s.db.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	if p.BuyerHash != callerHash {
		return fmt.Errorf("%w: only the buyer cancels", domain.ErrInvalidState)
	}
	if p.Status != domain.PurchasePending {
		return fmt.Errorf("%w: cancellation only while pending", domain.ErrInvalidState)
	}

	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.SetPurchaseStatus(purchaseID, domain.PurchasePending, domain.PurchaseCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: purchase left pending", domain.ErrInvalidState)
		}
		if err := tx.CreditWallet(p.BuyerHash, p.Amount); err != nil {
			return err
		}
		if err := tx.RestoreStock(p.ProductID, p.Quantity); err != nil {
			return err
		}
		ok, err = tx.SetTransactionStatus(p.TxID, domain.TxPending, domain.TxCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: escrow transaction already settled", domain.ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("purchase cancelled", "purchase", purchaseID, "buyer", callerHash)
	return nil
}

// DisputePurchase: buyer flags the order for admin review. The escrow stays
// held; resolution happens through the report workflow.
func (s *Service) DisputePurchase(callerHash, purchaseID string) error {
	p, err := s.db.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	if p.BuyerHash != callerHash {
		return fmt.Errorf("%w: only the buyer disputes", domain.ErrInvalidState)
	}
	if !p.Status.CanTransition(domain.PurchaseDisputed) {
		return fmt.Errorf("%w: purchase is %s", domain.ErrInvalidState, p.Status)
	}
	ok, err := s.db.SetPurchaseStatus(purchaseID, p.Status, domain.PurchaseDisputed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: purchase state moved", domain.ErrInvalidState)
	}
	return nil
}

// PurchasesFor lists purchases where the caller is buyer or seller.
func (s *Service) PurchasesFor(userHash string, page, limit int) (domain.Page[domain.Purchase], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	items, total, err := s.db.ListPurchasesFor(userHash, offset, limit)
	if err != nil {
		return domain.Page[domain.Purchase]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}

// ─── Shared Transition Plumbing ─────────────────────────────────────────────

type role int

const (
	roleBuyer role = iota
	roleSeller
)

func (s *Service) advancePurchase(callerHash, purchaseID string, r role, from, to domain.PurchaseStatus) error {
	p, err := s.db.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	actor := p.BuyerHash
	if r == roleSeller {
		actor = p.SellerHash
	}
	if actor != callerHash {
		return fmt.Errorf("%w: caller is not the expected actor for this edge", domain.ErrInvalidState)
	}
	if p.Status != from {
		return fmt.Errorf("%w: purchase is %s, expected %s", domain.ErrInvalidState, p.Status, from)
	}
	ok, err := s.db.SetPurchaseStatus(purchaseID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: purchase is no longer %s", domain.ErrInvalidState, from)
	}
	return nil
}
