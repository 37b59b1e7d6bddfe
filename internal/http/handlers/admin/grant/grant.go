// Package grant реализует HTTP-обработчик выдачи и отзыва доступа администратором.
package grant

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
	grantservice "github.com/magabrotheeeer/quran-entitlements/internal/services/grant"
)

// Service выдача доступа.
type Service interface {
	Grant(ctx context.Context, caller grantservice.Admin, targetEmail, duration string) (*grantservice.Result, error)
}

// Request тело запроса.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Duration string `json:"duration" validate:"required,oneof=lifetime 1_month 3_months 6_months 1_year revoke"`
}

// Handler обработчик POST /admin/grants.
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

// Caller собирает администратора из контекста запроса.
func Caller(ctx context.Context) (grantservice.Admin, bool) {
	account, ok := middlewarectx.AccountFrom(ctx)
	if !ok {
		return grantservice.Admin{}, false
	}
	id, _ := middlewarectx.IdentityFrom(ctx)
	adminID := id.ExternalID
	if adminID == "" {
		adminID = account.ID
	}
	return grantservice.Admin{ID: adminID, Email: account.Email, IsAdmin: true}, true
}

// ServeHTTP godoc
// @Summary Выдать или отозвать доступ
// @Description Работает и для email, под которым ещё никто не входил: создаётся заготовка аккаунта.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Email и срок"
// @Success 200 {object} grantservice.Result
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse "Нечего отзывать"
// @Failure 500 {object} response.ErrorResponse
// @Router /admin/grants [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	caller, ok := Caller(r.Context())
	if !ok {
		response.Fail(w, r, apperr.ErrForbidden)
		return
	}

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
			log.Info("invalid grant request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		response.Fail(w, r, apperr.ErrInvalidEmail)
		return
	}

	res, err := h.service.Grant(r.Context(), caller, req.Email, req.Duration)
	if err != nil {
		log.Error("grant failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(res))
}
