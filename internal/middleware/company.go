package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const companyIDKey contextKey = "companyID"

// CompanyScope requires the X-Company-ID header on every request and places
// the parsed id in the request context. Every query and mutation downstream
// is filtered to that company; there is no ambient "current company" state
// in the engine.
func CompanyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("X-Company-ID")
		if header == "" {
			http.Error(w, "X-Company-ID header required", http.StatusBadRequest)
			return
		}

		companyID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || companyID <= 0 {
			http.Error(w, "invalid X-Company-ID header", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), companyIDKey, companyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CompanyID returns the company scope set by CompanyScope.
func CompanyID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyIDKey).(int64)
	return id, ok
}

// WithCompanyID is used by tests to build pre-scoped requests.
func WithCompanyID(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}
