package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	authRealm       = `Basic realm="playpulse admin"`
	maxRequestIDLen = 128
)

// requestIDMiddleware propagates or generates X-Request-ID and attaches it
// to the request context for logging.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// securityHeadersMiddleware adds security headers to all responses.
// The API serves JSON only, so the content policy denies everything.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request count and latency by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}

// constantTimeEqualString compares two strings in constant time.
// Uses SHA-256 hashing to ensure comparison time is independent of input lengths.
func constantTimeEqualString(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// adminGuard requires HTTP Basic Auth against the configured admin user and
// bcrypt hash. Repeated failures from one IP lock it out for a while. With no
// admin user configured the guard is a pass-through.
func (s *Server) adminGuard(next http.Handler) http.Handler {
	if s.adminUser == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if s.authFailures.IsLocked(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(s.authFailures.LockoutSecondsRemaining(ip)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many failed attempts"})
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !s.checkAdmin(u, p) {
			if ok {
				remaining := s.authFailures.RecordFailure(ip)
				logging.Ctx(r.Context()).Warn().
					Str("ip", ip).
					Int("remaining_attempts", remaining).
					Msg("admin authentication failed")
			}
			w.Header().Set("WWW-Authenticate", authRealm)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		s.authFailures.RecordSuccess(ip)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkAdmin(user, password string) bool {
	userOK := constantTimeEqualString(user, s.adminUser)
	// Always run bcrypt so a wrong user costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
	return userOK && passOK
}
