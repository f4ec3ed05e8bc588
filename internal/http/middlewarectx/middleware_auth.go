// Package middlewarectx содержит HTTP middleware админского API.
//
// AdminAuthMiddleware проверяет JWT в заголовке Authorization и требует
// роль admin: авторизация — явное проверяемое предусловие каждой
// административной операции, а не скрытая обертка.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/jwt"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Operator — ключ для имени оператора в контексте.
const Operator Key = "operator"

// AdminAuthMiddleware возвращает middleware, который проверяет JWT в
// заголовке Authorization и пускает дальше только роль admin.
func AdminAuthMiddleware(maker jwt.Maker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminAuthMiddleware"
			authHeader := r.Header.Get("Authorization")

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			if claims.Role != jwt.RoleAdmin {
				log.Error("insufficient role", slog.String("role", claims.Role))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), Operator, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
