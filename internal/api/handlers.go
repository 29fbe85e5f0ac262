package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/yourtongji/creditd/internal/domain"
)

var validate = validator.New()

// decode unmarshals and validates a JSON request body. On failure it writes
// the error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed JSON body", domain.ErrValidation))
		return false
	}
	if err := validate.Struct(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

// pageParams reads ?page and ?limit; clamping happens in the services.
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

// ─── Wallet & Ledger ────────────────────────────────────────────────────────

type registerRequest struct {
	UserHash   string `json:"user_hash" validate:"required,len=64,hexadecimal"`
	UserSecret string `json:"user_secret" validate:"required,min=8,max=256"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	wallet, created, err := s.ledger.Register(req.UserHash, req.UserSecret, s.signupBonus)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"wallet": wallet, "created": created})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.ledger.Wallet(callerHash(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.ledger.History(callerHash(r), page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type transferRequest struct {
	ToUserHash  string `json:"to_user_hash" validate:"required,len=64,hexadecimal"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.ledger.Transfer(callerHash(r), req.ToUserHash, req.Amount, req.Title, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.redeem.Redeem(req.Code, callerHash(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

type createTaskRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	ContactInfo  string `json:"contact_info" validate:"max=200"`
	RewardAmount int64  `json:"reward_amount" validate:"required,gt=0"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.escrow.CreateTask(callerHash(r), req.Title, req.Description, req.ContactInfo, req.RewardAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	page, limit := pageParams(r)
	result, err := s.escrow.Tasks(status, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The public listing never exposes contact details.
	for i := range result.Data {
		result.Data[i].ContactInfo = ""
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.escrow.Task(chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Contact details are for the creator and, once accepted, the acceptor.
	caller := callerHash(r)
	if caller != t.CreatorHash && (t.AcceptorHash == "" || caller != t.AcceptorHash) {
		t.ContactInfo = ""
	}
	writeJSON(w, http.StatusOK, t)
}

// taskAction adapts the escrow task transitions to one handler shape.
func (s *Server) taskAction(fn func(callerHash, taskID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if err := fn(callerHash(r), taskID); err != nil {
			s.writeError(w, err)
			return
		}
		t, err := s.escrow.Task(taskID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// ─── Market ─────────────────────────────────────────────────────────────────

type createProductRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"required,gt=0"`
	Stock       int64  `json:"stock" validate:"required,gt=0"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.escrow.CreateProduct(callerHash(r), req.Title, req.Description, req.Price, req.Stock)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRemoveProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.escrow.RemoveProduct(callerHash(r), chi.URLParam(r, "productID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.escrow.Products(page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createPurchaseRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.escrow.Purchase(callerHash(r), req.ProductID, req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.escrow.PurchasesFor(callerHash(r), page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// purchaseAction adapts the escrow purchase transitions to one handler shape.
func (s *Server) purchaseAction(fn func(callerHash, purchaseID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		purchaseID := chi.URLParam(r, "purchaseID")
		if err := fn(callerHash(r), purchaseID); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ─── Reports ────────────────────────────────────────────────────────────────

type createReportRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=transaction content"`
	TargetID    string `json:"target_id" validate:"required,max=64"`
	Type        string `json:"type" validate:"required,oneof=appeal report"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	rep, err := s.report.File(callerHash(r), domain.ReportKind(req.Kind), req.TargetID,
		domain.ReportType(req.Type), req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleMyReports(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := s.report.Reports("", callerHash(r), page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleAdminReports(w http.ResponseWriter, r *http.Request) {
	status := domain.ReportStatus(r.URL.Query().Get("status"))
	page, limit := pageParams(r)
	result, err := s.report.Reports(status, "", page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type adminHandleRequest struct {
	Decision string `json:"decision" validate:"required,oneof=resolved rejected take_down compensate"`
	Note     string `json:"note" validate:"max=2000"`
}

func (s *Server) handleAdminHandleReport(w http.ResponseWriter, r *http.Request) {
	var req adminHandleRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.report.Handle(chi.URLParam(r, "reportID"), domain.ReportStatus(req.Decision), req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"status": req.Decision}
	if c != nil {
		resp["recovery_case"] = c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminRecoveries(w http.ResponseWriter, r *http.Request) {
	status := domain.RecoveryStatus(r.URL.Query().Get("status"))
	page, limit := pageParams(r)
	result, err := s.report.Cases(status, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdminRecover(w http.ResponseWriter, r *http.Request) {
	if err := s.report.Recover(chi.URLParam(r, "caseID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
}

func (s *Server) handleAdminCloseCase(w http.ResponseWriter, r *http.Request) {
	if err := s.report.CloseCase(chi.URLParam(r, "caseID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

type adminMintRequest struct {
	ToUserHash  string `json:"to_user_hash" validate:"required,len=64,hexadecimal"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (s *Server) handleAdminMint(w http.ResponseWriter, r *http.Request) {
	var req adminMintRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.ledger.Mint(req.ToUserHash, req.Amount, domain.TxSystemReward, req.Title, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

type adminCodeRequest struct {
	Code    string `json:"code" validate:"max=64"`
	Value   int64  `json:"value" validate:"required,gt=0"`
	MaxUses int64  `json:"max_uses" validate:"required,gt=0"`
}

func (s *Server) handleAdminCreateCode(w http.ResponseWriter, r *http.Request) {
	var req adminCodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.redeem.CreateCode(req.Code, req.Value, req.MaxUses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
