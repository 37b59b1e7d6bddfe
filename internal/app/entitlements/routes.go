package entitlements

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/access/status"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/admin/account"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/admin/grantlist"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/health"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/voucher/create"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/voucher/redeem"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/voucher/validate"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	entitlementservice "github.com/magabrotheeeer/quran-entitlements/internal/services/entitlement"
	grantservice "github.com/magabrotheeeer/quran-entitlements/internal/services/grant"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/identity"
	paymentservice "github.com/magabrotheeeer/quran-entitlements/internal/services/payment"
	voucherservice "github.com/magabrotheeeer/quran-entitlements/internal/services/voucher"
)

// Services зависимости маршрутов.
type Services struct {
	Tokens      middlewarectx.TokenParser
	Identity    *identity.Resolver
	Entitlement *entitlementservice.Service
	Grant       *grantservice.Service
	Voucher     *voucherservice.Service
	Webhook     *paymentservice.WebhookService
	DB          health.Pinger
	RedeemRPS   float64
	RedeemBurst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(logger, s.DB).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		// Вебхук без аутентификации, подпись проверяет сервис
		r.Post("/billing/webhook", webhook.New(logger, s.Webhook).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(s.Tokens, logger))

			r.Get("/access", status.New(logger, s.Entitlement).ServeHTTP)
			r.Post("/vouchers/validate", validate.New(logger, s.Voucher).ServeHTTP)
			r.With(middlewarectx.RateLimitMiddleware(logger, s.RedeemRPS, s.RedeemBurst)).
				Post("/vouchers/redeem", redeem.New(logger, s.Voucher).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.AdminMiddleware(s.Identity, s.Grant, logger))
				r.Post("/grants", grant.New(logger, s.Grant).ServeHTTP)
				r.Get("/grants", grantlist.New(logger, s.Grant).ServeHTTP)
				r.Get("/accounts/{id}", account.New(logger, s.Entitlement).ServeHTTP)
				r.Post("/vouchers", create.New(logger, s.Voucher).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
