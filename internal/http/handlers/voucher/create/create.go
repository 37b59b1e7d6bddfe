// Package create реализует HTTP-обработчик создания ваучера администратором.
package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/voucher"
)

// Service создание ваучера.
type Service interface {
	Create(ctx context.Context, actor string, isAdmin bool, in voucher.CreateInput) (*models.Voucher, error)
}

// Handler обработчик POST /admin/vouchers.
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
// @Summary Создать ваучер
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body voucher.CreateInput true "Параметры ваучера"
// @Success 201 {object} models.Voucher
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Router /admin/vouchers [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.voucher.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	admin, ok := middlewarectx.AccountFrom(r.Context())
	if !ok {
		response.Fail(w, r, apperr.ErrForbidden)
		return
	}

	var in voucher.CreateInput
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		response.Fail(w, r, apperr.ErrInvalidVoucher)
		return
	}

	v, err := h.service.Create(r.Context(), admin.Email, true, in)
	if err != nil {
		log.Error("failed to create voucher", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("voucher created", slog.String("code", v.Code))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(v))
}
