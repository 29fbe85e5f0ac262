// Package api exposes the credit ledger over HTTP.
//
// Three trust tiers share one router: public endpoints (register, listings,
// health), signed endpoints gated by the HMAC request verifier, and admin
// endpoints gated by the shared admin token.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourtongji/creditd/internal/app/escrow"
	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/app/redeem"
	"github.com/yourtongji/creditd/internal/app/report"
	"github.com/yourtongji/creditd/internal/auth"
	"github.com/yourtongji/creditd/internal/domain"
)

// Version is reported by /api/version and the CLI.
const Version = "0.1.0"

// Server is the credit ledger HTTP API server.
type Server struct {
	ledger   *ledger.Service
	escrow   *escrow.Service
	report   *report.Service
	redeem   *redeem.Service
	verifier *auth.Verifier
	log      *slog.Logger

	limiter        domain.RateLimiter
	adminToken     string
	signupBonus    int64
	metricsEnabled bool
}

// NewServer wires the services behind the HTTP surface.
func NewServer(led *ledger.Service, esc *escrow.Service, rep *report.Service, red *redeem.Service, verifier *auth.Verifier, log *slog.Logger) *Server {
	return &Server{ledger: led, escrow: esc, report: rep, redeem: red, verifier: verifier, log: log}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRateLimiter installs the advisory per-caller limiter.
func (s *Server) SetRateLimiter(l domain.RateLimiter) { s.limiter = l }

// SetAdminToken sets the shared admin secret. Empty disables /admin entirely.
func (s *Server) SetAdminToken(token string) { s.adminToken = token }

// SetSignupBonus sets the amount minted on first registration.
func (s *Server) SetSignupBonus(amount int64) { s.signupBonus = amount }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)
	r.Use(metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Public surface: registration and read-only listings.
	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/register", s.handleRegister)
		r.Get("/products", s.handleListProducts)
		r.Get("/tasks", s.handleListTasks)

		// Signed surface: everything acting on or as a wallet.
		r.Group(func(r chi.Router) {
			r.Use(s.signed)

			r.Get("/wallet", s.handleWallet)
			r.Get("/transactions", s.handleTransactions)
			r.Post("/transfer", s.handleTransfer)
			r.Post("/redeem", s.handleRedeem)

			r.Post("/tasks", s.handleCreateTask)
			r.Get("/tasks/{taskID}", s.handleGetTask)
			r.Post("/tasks/{taskID}/accept", s.taskAction(s.escrow.AcceptTask))
			r.Post("/tasks/{taskID}/submit", s.taskAction(s.escrow.SubmitTask))
			r.Post("/tasks/{taskID}/confirm", s.taskAction(s.escrow.ConfirmTask))
			r.Post("/tasks/{taskID}/reject", s.taskAction(s.escrow.RejectTask))
			r.Post("/tasks/{taskID}/abandon", s.taskAction(s.escrow.AbandonTask))
			r.Post("/tasks/{taskID}/close", s.taskAction(s.escrow.CloseTask))

			r.Post("/products", s.handleCreateProduct)
			r.Delete("/products/{productID}", s.handleRemoveProduct)
			r.Post("/purchases", s.handleCreatePurchase)
			r.Get("/purchases", s.handleListPurchases)
			r.Post("/purchases/{purchaseID}/accept", s.purchaseAction(s.escrow.AcceptPurchase))
			r.Post("/purchases/{purchaseID}/deliver", s.purchaseAction(s.escrow.DeliverPurchase))
			r.Post("/purchases/{purchaseID}/confirm", s.purchaseAction(s.escrow.ConfirmPurchase))
			r.Post("/purchases/{purchaseID}/cancel", s.purchaseAction(s.escrow.CancelPurchase))
			r.Post("/purchases/{purchaseID}/dispute", s.purchaseAction(s.escrow.DisputePurchase))

			r.Post("/reports", s.handleCreateReport)
			r.Get("/reports", s.handleMyReports)
		})
	})

	// Admin surface: shared-token trust boundary.
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.admin)

		r.Get("/reports", s.handleAdminReports)
		r.Post("/reports/{reportID}/handle", s.handleAdminHandleReport)
		r.Get("/recoveries", s.handleAdminRecoveries)
		r.Post("/recoveries/{caseID}/recover", s.handleAdminRecover)
		r.Post("/recoveries/{caseID}/close", s.handleAdminCloseCase)
		r.Post("/mint", s.handleAdminMint)
		r.Post("/codes", s.handleAdminCreateCode)
	})

	return r
}
