package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
)

// Identity headers are set by the gateway in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"
)

type userKey struct{}

func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || id <= 0 {
			writeProblem(w, r, http.StatusUnauthorized, "unauthenticated", "missing or invalid "+HeaderUserID, nil)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, id)
		ctx = logging.WithContext(ctx, logging.FromContext(ctx, nil).With(zap.Int64("user_id", id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderUserRole) != RoleAdmin {
			writeProblem(w, r, http.StatusForbidden, "forbidden", "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger puts a request scoped logger on the context and logs one
// line per request once it completes.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			logger := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(logging.WithContext(r.Context(), logger))

			defer func() {
				route := r.URL.Path
				if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("status", ww.Status()),
					zap.Duration("latency", time.Since(start)),
				}
				if uid := r.Header.Get(HeaderUserID); uid != "" {
					fields = append(fields, zap.String("user_id", uid))
				}
				if ww.Status() >= http.StatusInternalServerError {
					logging.Warn(r.Context(), logger, "Request failed", fields...)
					return
				}
				logging.Info(r.Context(), logger, "Request handled", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
