package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/atrium-hq/atrium/internal/shared"
)

// Middleware wires permission checks into HTTP handlers. Render-time and
// route-level checks fail closed: any resolution error denies the request and
// is logged for diagnosis.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePermission ensures the current user holds the given permission.
func (m Middleware) RequirePermission(code string) func(http.Handler) http.Handler {
	return m.RequireAll(code)
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	required := dedupe(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, code := range required {
				allowed, err := m.Service.HasPermission(r.Context(), userID, code)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Int64("user_id", userID), slog.Any("error", err))
					}
					continue
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	required := dedupe(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, code := range required {
				allowed, err := m.Service.HasPermission(r.Context(), userID, code)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require all", slog.Int64("user_id", userID), slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				if !allowed {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func dedupe(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := unique[code]; ok {
			continue
		}
		unique[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
