// Package status реализует HTTP-обработчик проверки доступа вызывающего.
//
// Это единственная точка, где при отрицательном решении допускается запрос к
// платёжной системе: пользователь мог только что вернуться со страницы оплаты.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/access"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/entitlement"
)

// Service проверка доступа.
type Service interface {
	Check(ctx context.Context, id models.Identity) (*entitlement.Status, error)
}

// Handler обработчик GET /access.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// Response тело ответа.
type Response struct {
	Allowed         bool                    `json:"allowed"`
	Reason          access.Reason           `json:"reason"`
	Status          string                  `json:"subscription_status"`
	Plan            string                  `json:"subscription_plan,omitempty"`
	Tier            string                  `json:"subscription_tier,omitempty"`
	EndDate         *time.Time              `json:"subscription_end_date,omitempty"`
	TrialEndsAt     *time.Time              `json:"trial_ends_at,omitempty"`
	HasDirectAccess bool                    `json:"has_direct_access"`
	Features        map[access.Feature]bool `json:"features"`
	Reconciled      bool                    `json:"reconciled"`
}

// ServeHTTP godoc
// @Summary Проверить доступ
// @Description Возвращает решение о доступе, уровень и доступные функции. При отказе один раз сверяется с платёжной системой.
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /access [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok {
		response.Fail(w, r, apperr.ErrNotAuthenticated)
		return
	}

	st, err := h.service.Check(r.Context(), id)
	if err != nil {
		log.Error("access check failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Debug("access decided", slog.String("account_id", st.Account.ID), slog.String("reason", string(st.Decision.Reason)))
	render.JSON(w, r, response.StatusOKWithData(NewResponse(st)))
}

// NewResponse собирает тело ответа из решения.
func NewResponse(st *entitlement.Status) Response {
	a := st.Account
	return Response{
		Allowed:         st.Decision.Allowed,
		Reason:          st.Decision.Reason,
		Status:          string(a.SubscriptionStatus),
		Plan:            a.Plan(),
		Tier:            a.Tier(),
		EndDate:         a.SubscriptionEndDate,
		TrialEndsAt:     a.TrialEndsAt,
		HasDirectAccess: a.HasDirectAccess,
		Features:        st.Features,
		Reconciled:      st.Reconciled,
	}
}
