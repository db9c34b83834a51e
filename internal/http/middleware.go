package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// subjectClaims lists, in order, the claims that may carry the user id.
var subjectClaims = []string{"sub", "userId", "id"}

// AuthMiddleware verifies an HS256 bearer token and requires its subject to
// match the {userId} path parameter.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "Access denied: no token provided")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if subject(claims) != chi.URLParam(r, "userId") {
				respondError(w, http.StatusForbidden, "Token does not belong to this user")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func subject(claims jwt.MapClaims) string {
	for _, name := range subjectClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// RequestLogger logs every request once it completes and records it in m.
// The route label is the matched chi pattern, so ids never reach the metric.
func RequestLogger(l *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, status, elapsed)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				logger.Error(r.Context(), l, "http request", fields...)
				return
			}
			logger.Info(r.Context(), l, "http request", fields...)
		})
	}
}
