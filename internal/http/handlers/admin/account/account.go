// Package account реализует HTTP-обработчик просмотра доступа аккаунта администратором.
package account

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/access/status"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/entitlement"
)

// Service решение о доступе по id аккаунта.
type Service interface {
	Inspect(ctx context.Context, accountID string) (*entitlement.Status, error)
}

// Handler обработчик GET /admin/accounts/{id}.
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
	AccountID   string   `json:"account_id"`
	Email       string   `json:"email"`
	ExternalIDs []string `json:"external_ids"`
	status.Response
}

// ServeHTTP godoc
// @Summary Доступ аккаунта
// @Description Решение о доступе для аккаунта по id без обращения к платёжной системе.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Id аккаунта"
// @Success 200 {object} Response
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/accounts/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.account"
	id := chi.URLParam(r, "id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("account_id", id),
	)

	st, err := h.service.Inspect(r.Context(), id)
	if err != nil {
		log.Warn("account inspection failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("account inspected", slog.String("reason", string(st.Decision.Reason)))
	render.JSON(w, r, response.StatusOKWithData(Response{
		AccountID:   st.Account.ID,
		Email:       st.Account.Email,
		ExternalIDs: st.Account.ExternalIDs,
		Response:    status.NewResponse(st),
	}))
}
