package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/jwtauth"
	"golang.org/x/time/rate"
)

type contextKey string

const companyIDKey contextKey = "company_id"

// CompanyIDHeader carries the tenant when JWT auth is disabled.
const CompanyIDHeader = "X-Company-Id"

// CompanyIDClaim is the JWT claim holding the tenant.
const CompanyIDClaim = "company_id"

// WithCompanyID returns a copy of ctx carrying companyID.
func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// CompanyIDFromContext returns the tenant resolved by one of the tenant
// middlewares, or "" when none ran.
func CompanyIDFromContext(ctx context.Context) string {
	companyID, _ := ctx.Value(companyIDKey).(string)
	return companyID
}

// Tenant picks the tenant middleware: JWT claims when ja is set, the
// X-Company-Id header otherwise.
func Tenant(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	if ja == nil {
		return TenantFromHeader
	}
	return TenantFromJWT(ja)
}

// TenantFromHeader reads the tenant from the X-Company-Id header.
func TenantFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID := strings.TrimSpace(r.Header.Get(CompanyIDHeader))
		if companyID == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing "+CompanyIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCompanyID(r.Context(), companyID)))
	})
}

// TenantFromJWT verifies the bearer token and reads the tenant from its
// company_id claim.
func TenantFromJWT(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verifier := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				slog.Debug("Rejected request token", "err", err)
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			companyID, _ := claims[CompanyIDClaim].(string)
			companyID = strings.TrimSpace(companyID)
			if companyID == "" {
				writeError(w, r, http.StatusForbidden, "forbidden", "token has no "+CompanyIDClaim+" claim")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCompanyID(r.Context(), companyID)))
		}))
	}
}

// RateLimit rejects requests with 429 once limiter runs out of tokens. A nil
// limiter disables limiting.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				retryAfter := 1
				if l := float64(limiter.Limit()); l > 0 && l < 1 {
					retryAfter = int(math.Round(1 / l))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Upload rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
