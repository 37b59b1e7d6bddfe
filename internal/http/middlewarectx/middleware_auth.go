// Package middlewarectx содержит HTTP middleware движка доступа.
//
// JWTMiddleware проверяет токен поставщика аутентификации в заголовке
// Authorization и кладёт личность вызывающего в контекст запроса.
// AdminMiddleware пропускает только администраторов. RateLimitMiddleware
// ограничивает частоту запросов одного вызывающего.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// IdentityKey ключ проверенной личности вызывающего.
	IdentityKey Key = "identity"
	// AccountKey ключ аккаунта администратора, найденного AdminMiddleware.
	AccountKey Key = "account"
)

// TokenParser разбор и проверка токена.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.IdentityClaims, error)
}

// IdentityFrom возвращает личность вызывающего из контекста.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok && id.ExternalID != ""
}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
//
// Если токен валиден, добавляет личность вызывающего в контекст запроса,
// иначе возвращает ошибку с HTTP статусом 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		})
	}
}
