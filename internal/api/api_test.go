package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neilotoole/slogt"

	"github.com/yourtongji/creditd/internal/app/escrow"
	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/app/redeem"
	"github.com/yourtongji/creditd/internal/app/report"
	"github.com/yourtongji/creditd/internal/auth"
	"github.com/yourtongji/creditd/internal/infra/noncecache"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

const (
	hashA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	secretA = "super-secret-a"
	secretB = "super-secret-b"

	adminToken = "test-admin-token"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "credit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := slogt.New(t)
	verifier := auth.NewVerifier(db, noncecache.NewMemory(), auth.DefaultWindow)
	srv := NewServer(
		ledger.NewService(db, log),
		escrow.NewService(db, log),
		report.NewService(db, log),
		redeem.NewService(db, log),
		verifier,
		log,
	)
	srv.SetAdminToken(adminToken)
	srv.SetSignupBonus(100)
	return srv.Handler()
}

// do runs one request and decodes the JSON response into out (if non-nil).
func do(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d (body %s)", req.Method, req.URL.Path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func jsonReq(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// signedReq builds a request carrying a valid signature for secret.
func signedReq(t *testing.T, method, path, userHash, secret string, body any) *http.Request {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	ts := time.Now().UnixMilli()
	nonce := uuid.NewString()
	sig, err := auth.Sign(secret, raw, ts, nonce)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Hash", userHash)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)
	return req
}

func register(t *testing.T, h http.Handler, userHash, secret string) {
	t.Helper()
	req := jsonReq(t, "POST", "/api/register", map[string]any{
		"user_hash": userHash, "user_secret": secret,
	})
	do(t, h, req, http.StatusCreated, nil)
}

// ─── Registration ───────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	h := newTestHandler(t)

	var resp struct {
		Created bool `json:"created"`
		Wallet  struct {
			Balance int64 `json:"balance"`
		} `json:"wallet"`
	}
	req := jsonReq(t, "POST", "/api/register", map[string]any{
		"user_hash": hashA, "user_secret": secretA,
	})
	do(t, h, req, http.StatusCreated, &resp)
	if !resp.Created || resp.Wallet.Balance != 100 {
		t.Fatalf("first register: created=%v balance=%d, want true/100", resp.Created, resp.Wallet.Balance)
	}

	// Idempotent re-register: 200, no second bonus.
	req = jsonReq(t, "POST", "/api/register", map[string]any{
		"user_hash": hashA, "user_secret": secretA,
	})
	do(t, h, req, http.StatusOK, &resp)
	if resp.Created || resp.Wallet.Balance != 100 {
		t.Fatalf("re-register: created=%v balance=%d, want false/100", resp.Created, resp.Wallet.Balance)
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newTestHandler(t)

	var resp errorBody
	req := jsonReq(t, "POST", "/api/register", map[string]any{
		"user_hash": "short", "user_secret": secretA,
	})
	do(t, h, req, http.StatusBadRequest, &resp)
	if resp.Error.Code != "validation_error" {
		t.Fatalf("error code = %q, want validation_error", resp.Error.Code)
	}
}

// ─── Signing ────────────────────────────────────────────────────────────────

func TestSignedWallet(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	var wallet struct {
		UserHash  string `json:"user_hash"`
		Balance   int64  `json:"balance"`
		CreatedAt int64  `json:"created_at"`
	}
	do(t, h, signedReq(t, "GET", "/api/wallet", hashA, secretA, nil), http.StatusOK, &wallet)
	if wallet.UserHash != hashA || wallet.Balance != 100 {
		t.Fatalf("wallet = %+v", wallet)
	}
	// Timestamps cross the wire as epoch milliseconds.
	if wallet.CreatedAt < 1e12 {
		t.Errorf("created_at = %d, want epoch milliseconds", wallet.CreatedAt)
	}
}

func TestSignedRequest_WrongSecret(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	var resp errorBody
	do(t, h, signedReq(t, "GET", "/api/wallet", hashA, "wrong-secret", nil), http.StatusUnauthorized, &resp)
	if resp.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q, want unauthorized", resp.Error.Code)
	}
}

func TestSignedRequest_StaleTimestamp(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	// Correctly signed, but ten minutes old.
	ts := time.Now().Add(-10 * time.Minute).UnixMilli()
	nonce := uuid.NewString()
	sig, err := auth.Sign(secretA, nil, ts, nonce)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/wallet", nil)
	req.Header.Set("X-User-Hash", hashA)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)

	do(t, h, req, http.StatusUnauthorized, nil)
}

func TestSignedRequest_ReplayRejected(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	req := signedReq(t, "GET", "/api/wallet", hashA, secretA, nil)
	replay := req.Clone(req.Context())

	do(t, h, req, http.StatusOK, nil)
	do(t, h, replay, http.StatusUnauthorized, nil)
}

func TestSignedRequest_MissingHeaders(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	do(t, h, httptest.NewRequest("GET", "/api/wallet", nil), http.StatusUnauthorized, nil)
}

// ─── Transfers ──────────────────────────────────────────────────────────────

func TestTransfer(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)
	register(t, h, hashB, secretB)

	body := map[string]any{"to_user_hash": hashB, "amount": 40, "title": "lunch"}
	do(t, h, signedReq(t, "POST", "/api/transfer", hashA, secretA, body), http.StatusCreated, nil)

	var wallet struct {
		Balance int64 `json:"balance"`
	}
	do(t, h, signedReq(t, "GET", "/api/wallet", hashB, secretB, nil), http.StatusOK, &wallet)
	if wallet.Balance != 140 {
		t.Fatalf("receiver balance = %d, want 140", wallet.Balance)
	}
}

func TestTransfer_Insufficient(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)
	register(t, h, hashB, secretB)

	body := map[string]any{"to_user_hash": hashB, "amount": 10_000}
	var resp errorBody
	do(t, h, signedReq(t, "POST", "/api/transfer", hashA, secretA, body), http.StatusUnprocessableEntity, &resp)
	if resp.Error.Code != "insufficient_balance" {
		t.Fatalf("error code = %q, want insufficient_balance", resp.Error.Code)
	}
}

// ─── Task Contact Visibility ────────────────────────────────────────────────

func TestTaskContactVisibility(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)
	register(t, h, hashB, secretB)

	var task struct {
		TaskID      string `json:"task_id"`
		ContactInfo string `json:"contact_info"`
	}
	body := map[string]any{"title": "move boxes", "contact_info": "room 401", "reward_amount": 50}
	do(t, h, signedReq(t, "POST", "/api/tasks", hashA, secretA, body), http.StatusCreated, &task)

	// Public listing redacts contact info.
	var page struct {
		Data []struct {
			ContactInfo string `json:"contact_info"`
		} `json:"data"`
	}
	do(t, h, httptest.NewRequest("GET", "/api/tasks?status=open", nil), http.StatusOK, &page)
	if len(page.Data) != 1 || page.Data[0].ContactInfo != "" {
		t.Fatalf("public listing leaked contact info: %+v", page.Data)
	}

	// A stranger's detail view is redacted too.
	var got struct {
		ContactInfo string `json:"contact_info"`
	}
	do(t, h, signedReq(t, "GET", "/api/tasks/"+task.TaskID, hashB, secretB, nil), http.StatusOK, &got)
	if got.ContactInfo != "" {
		t.Fatalf("stranger saw contact info %q", got.ContactInfo)
	}

	// After accepting, the acceptor sees it.
	do(t, h, signedReq(t, "POST", "/api/tasks/"+task.TaskID+"/accept", hashB, secretB, nil), http.StatusOK, nil)
	do(t, h, signedReq(t, "GET", "/api/tasks/"+task.TaskID, hashB, secretB, nil), http.StatusOK, &got)
	if got.ContactInfo != "room 401" {
		t.Fatalf("acceptor contact info = %q, want room 401", got.ContactInfo)
	}
}

// ─── Market ─────────────────────────────────────────────────────────────────

func TestPurchaseFlow(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA) // buyer
	register(t, h, hashB, secretB) // seller

	var prod struct {
		ProductID string `json:"product_id"`
	}
	body := map[string]any{"title": "poster", "price": 25, "stock": 1}
	do(t, h, signedReq(t, "POST", "/api/products", hashB, secretB, body), http.StatusCreated, &prod)

	var purchase struct {
		PurchaseID string `json:"purchase_id"`
	}
	buy := map[string]any{"product_id": prod.ProductID, "quantity": 1}
	do(t, h, signedReq(t, "POST", "/api/purchases", hashA, secretA, buy), http.StatusCreated, &purchase)

	base := "/api/purchases/" + purchase.PurchaseID
	do(t, h, signedReq(t, "POST", base+"/accept", hashB, secretB, nil), http.StatusOK, nil)
	do(t, h, signedReq(t, "POST", base+"/deliver", hashB, secretB, nil), http.StatusOK, nil)
	do(t, h, signedReq(t, "POST", base+"/confirm", hashA, secretA, nil), http.StatusOK, nil)

	var wallet struct {
		Balance int64 `json:"balance"`
	}
	do(t, h, signedReq(t, "GET", "/api/wallet", hashB, secretB, nil), http.StatusOK, &wallet)
	if wallet.Balance != 125 {
		t.Fatalf("seller balance = %d, want 125", wallet.Balance)
	}

	// Sold-out product left the public listing.
	var page struct {
		Total int64 `json:"total"`
	}
	do(t, h, httptest.NewRequest("GET", "/api/products", nil), http.StatusOK, &page)
	if page.Total != 0 {
		t.Fatalf("listing total = %d, want 0", page.Total)
	}
}

func TestPurchase_WrongActor(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)
	register(t, h, hashB, secretB)

	var prod struct {
		ProductID string `json:"product_id"`
	}
	body := map[string]any{"title": "mug", "price": 10, "stock": 5}
	do(t, h, signedReq(t, "POST", "/api/products", hashB, secretB, body), http.StatusCreated, &prod)

	var purchase struct {
		PurchaseID string `json:"purchase_id"`
	}
	buy := map[string]any{"product_id": prod.ProductID, "quantity": 1}
	do(t, h, signedReq(t, "POST", "/api/purchases", hashA, secretA, buy), http.StatusCreated, &purchase)

	// The buyer cannot play the seller's part.
	var resp errorBody
	do(t, h, signedReq(t, "POST", "/api/purchases/"+purchase.PurchaseID+"/accept", hashA, secretA, nil),
		http.StatusConflict, &resp)
	if resp.Error.Code != "invalid_state" {
		t.Fatalf("error code = %q, want invalid_state", resp.Error.Code)
	}
}

// ─── Redeem ─────────────────────────────────────────────────────────────────

func TestRedeemFlow(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	// Admin issues a code.
	code := map[string]any{"code": "WELCOME", "value": 50, "max_uses": 1}
	req := jsonReq(t, "POST", "/admin/codes", code)
	req.Header.Set("X-Admin-Token", adminToken)
	do(t, h, req, http.StatusCreated, nil)

	do(t, h, signedReq(t, "POST", "/api/redeem", hashA, secretA, map[string]any{"code": "WELCOME"}), http.StatusCreated, nil)

	// Second redemption by the same user: conflict, balance unchanged.
	var resp errorBody
	do(t, h, signedReq(t, "POST", "/api/redeem", hashA, secretA, map[string]any{"code": "WELCOME"}), http.StatusConflict, &resp)
	if resp.Error.Code != "conflict" {
		t.Fatalf("error code = %q, want conflict", resp.Error.Code)
	}

	var wallet struct {
		Balance int64 `json:"balance"`
	}
	do(t, h, signedReq(t, "GET", "/api/wallet", hashA, secretA, nil), http.StatusOK, &wallet)
	if wallet.Balance != 150 {
		t.Fatalf("balance = %d, want 150", wallet.Balance)
	}
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func TestAdminTokenRequired(t *testing.T) {
	h := newTestHandler(t)

	mint := map[string]any{"to_user_hash": hashA, "amount": 10}
	do(t, h, jsonReq(t, "POST", "/admin/mint", mint), http.StatusUnauthorized, nil)

	bad := jsonReq(t, "POST", "/admin/mint", mint)
	bad.Header.Set("X-Admin-Token", "wrong")
	do(t, h, bad, http.StatusUnauthorized, nil)
}

func TestAdminMintAndReportPipeline(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)
	register(t, h, hashB, secretB)

	// A pays B, then appeals the transaction.
	var tx struct {
		TxID string `json:"tx_id"`
	}
	transfer := map[string]any{"to_user_hash": hashB, "amount": 60}
	do(t, h, signedReq(t, "POST", "/api/transfer", hashA, secretA, transfer), http.StatusCreated, &tx)

	var rep struct {
		ReportID string `json:"report_id"`
	}
	file := map[string]any{"kind": "transaction", "target_id": tx.TxID, "type": "appeal", "description": "never delivered"}
	do(t, h, signedReq(t, "POST", "/api/reports", hashA, secretA, file), http.StatusCreated, &rep)

	// Admin compensates: victim made whole, case opened.
	var handled struct {
		RecoveryCase struct {
			CaseID string `json:"case_id"`
		} `json:"recovery_case"`
	}
	handle := jsonReq(t, "POST", "/admin/reports/"+rep.ReportID+"/handle", map[string]any{"decision": "compensate"})
	handle.Header.Set("X-Admin-Token", adminToken)
	do(t, h, handle, http.StatusOK, &handled)
	if handled.RecoveryCase.CaseID == "" {
		t.Fatal("compensate did not open a recovery case")
	}

	var wallet struct {
		Balance int64 `json:"balance"`
	}
	do(t, h, signedReq(t, "GET", "/api/wallet", hashA, secretA, nil), http.StatusOK, &wallet)
	if wallet.Balance != 100 {
		t.Fatalf("victim balance = %d, want 100", wallet.Balance)
	}

	// Admin claws back from the offender.
	clawback := jsonReq(t, "POST", "/admin/recoveries/"+handled.RecoveryCase.CaseID+"/recover", nil)
	clawback.Header.Set("X-Admin-Token", adminToken)
	do(t, h, clawback, http.StatusOK, nil)

	do(t, h, signedReq(t, "GET", "/api/wallet", hashB, secretB, nil), http.StatusOK, &wallet)
	if wallet.Balance != 100 {
		t.Fatalf("offender balance = %d, want 100", wallet.Balance)
	}
}

// ─── Misc ───────────────────────────────────────────────────────────────────

func TestHealthAndVersion(t *testing.T) {
	h := newTestHandler(t)

	do(t, h, httptest.NewRequest("GET", "/health", nil), http.StatusOK, nil)

	var v struct {
		Version string `json:"version"`
	}
	do(t, h, httptest.NewRequest("GET", "/api/version", nil), http.StatusOK, &v)
	if v.Version != Version {
		t.Fatalf("version = %q, want %q", v.Version, Version)
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, hashA, secretA)

	var resp errorBody
	do(t, h, signedReq(t, "GET", "/api/tasks/"+uuid.NewString(), hashA, secretA, nil), http.StatusNotFound, &resp)
	if resp.Error.Code != "not_found" || resp.Error.Message == "" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}
