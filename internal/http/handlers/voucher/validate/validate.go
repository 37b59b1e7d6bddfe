// Package validate реализует HTTP-обработчик проверки кода ваучера.
package validate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Service проверка ваучера.
type Service interface {
	Validate(ctx context.Context, code string) (*models.VoucherSummary, error)
}

// Request тело запроса.
type Request struct {
	Code string `json:"code" validate:"max=64"`
}

// Handler обработчик POST /vouchers/validate.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверить код ваучера
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Код"
// @Success 200 {object} models.VoucherSummary
// @Failure 400 {object} response.ErrorResponse "Код не передан"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 410 {object} response.ErrorResponse "Ваучер неактивен, истёк или исчерпан"
// @Router /vouchers/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.voucher.validate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		response.Fail(w, r, apperr.ErrInvalidCode)
		return
	}

	summary, err := h.service.Validate(r.Context(), req.Code)
	if err != nil {
		log.Info("voucher rejected", slog.String("code", apperr.CodeOf(err)))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(summary))
}
