// Package redeem реализует HTTP-обработчик погашения ваучера вызывающим.
package redeem

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/voucher"
)

// Service погашение ваучера.
type Service interface {
	Redeem(ctx context.Context, id models.Identity, code string) (*voucher.RedeemResult, error)
}

// Request тело запроса.
type Request struct {
	Code string `json:"code"`
}

// Handler обработчик POST /vouchers/redeem.
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

// ServeHTTP godoc
// @Summary Погасить ваучер
// @Description Открывает доступ уровня ваучера на его срок. Один ваучер погашается аккаунтом один раз.
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Код"
// @Success 200 {object} voucher.RedeemResult
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Уже погашен"
// @Failure 410 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /vouchers/redeem [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.voucher.redeem"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok {
		response.Fail(w, r, apperr.ErrNotAuthenticated)
		return
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	res, err := h.service.Redeem(r.Context(), id, req.Code)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			log.Error("voucher redemption failed", sl.Err(err))
		} else {
			log.Info("voucher redemption rejected", slog.String("code", apperr.CodeOf(err)))
		}
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(res))
}
