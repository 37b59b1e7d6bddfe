package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Resolver сопоставление вызывающего с аккаунтом.
type Resolver interface {
	Resolve(ctx context.Context, id models.Identity) (*models.Account, error)
}

// AdminChecker решает, является ли владелец аккаунта администратором.
type AdminChecker interface {
	IsAdmin(a *models.Account) bool
}

// AccountFrom возвращает аккаунт администратора из контекста.
func AccountFrom(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(AccountKey).(*models.Account)
	return a, ok && a != nil
}

// AdminMiddleware пропускает запрос, только если вызывающий администратор.
// Должен стоять после JWTMiddleware.
func AdminMiddleware(resolver Resolver, checker AdminChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			id, ok := IdentityFrom(r.Context())
			if !ok {
				response.Fail(w, r, apperr.ErrNotAuthenticated)
				return
			}
			account, err := resolver.Resolve(r.Context(), id)
			if err != nil {
				log.Error("failed to resolve caller", sl.Err(err))
				response.Fail(w, r, err)
				return
			}
			if !checker.IsAdmin(account) {
				log.Warn("admin route denied", slog.String("actor", account.Email), slog.Bool("security", true))
				response.Fail(w, r, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AccountKey, account)))
		})
	}
}
