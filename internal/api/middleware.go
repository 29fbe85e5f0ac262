package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yourtongji/creditd/internal/auth"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
)

type ctxKey int

const userHashKey ctxKey = iota

// callerHash returns the verified wallet hash for a signed request.
func callerHash(r *http.Request) string {
	h, _ := r.Context().Value(userHashKey).(string)
	return h
}

// maxBodyBytes caps request bodies; payloads here are small JSON objects.
const maxBodyBytes = 64 << 10

// signed verifies the four signing headers against the request body and, on
// success, stashes the caller's hash in the context and rewinds the body for
// the handler.
func (s *Server) signed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, domain.ErrValidation)
			return
		}
		r.Body.Close()

		ts, _ := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		h := auth.Header{
			UserHash:  r.Header.Get("X-User-Hash"),
			Signature: r.Header.Get("X-Signature"),
			Timestamp: ts,
			Nonce:     r.Header.Get("X-Nonce"),
		}
		if err := s.verifier.Verify(r.Context(), h, body); err != nil {
			observability.AuthFailures.WithLabelValues(authFailReason(err)).Inc()
			s.writeError(w, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), userHashKey, h.UserHash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFailReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "unknown_wallet"
	case errors.Is(err, domain.ErrUnverifiable):
		return "no_secret"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

// admin gates a route behind the shared admin token, presented either as
// X-Admin-Token or a bearer Authorization header.
func (s *Server) admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			const prefix = "Bearer "
			if ah := r.Header.Get("Authorization"); len(ah) > len(prefix) && ah[:len(prefix)] == prefix {
				token = ah[len(prefix):]
			}
		}
		if err := auth.CheckAdminToken(token, s.adminToken); err != nil {
			observability.AuthFailures.WithLabelValues("admin_token").Inc()
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the advisory per-caller limiter. It runs before
// signature verification so unverifiable traffic is throttled too; the key
// is the remote address, since no verified caller identity exists yet.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			key := r.RemoteAddr
			if !s.limiter.Allow(key) {
				observability.RateLimited.Inc()
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Error: errorDetail{Code: "rate_limited", Message: "too many requests"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// metrics records per-route counters and latency using the chi route pattern
// so path parameters do not explode the label space.
func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status()/100*100)).Inc()
		observability.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// corsMiddleware adds permissive CORS headers; campus frontends are served
// from a different origin than the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Hash, X-Signature, X-Timestamp, X-Nonce, X-Admin-Token, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
