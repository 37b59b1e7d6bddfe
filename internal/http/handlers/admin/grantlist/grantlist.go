// Package grantlist реализует HTTP-обработчик просмотра журнала выдач.
package grantlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	grantservice "github.com/magabrotheeeer/quran-entitlements/internal/services/grant"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service чтение журнала.
type Service interface {
	ListLogs(ctx context.Context, caller grantservice.Admin, limit, offset int) ([]*models.AdminGrantLog, error)
}

// Handler обработчик GET /admin/grants.
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
// @Summary Журнал выдач доступа
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Размер страницы" default(50)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/grants [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grantlist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	caller, ok := grant.Caller(r.Context())
	if !ok {
		response.Fail(w, r, apperr.ErrForbidden)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	logs, err := h.service.ListLogs(r.Context(), caller, limit, offset)
	if err != nil {
		log.Error("failed to list grant logs", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("list grant logs", "count", len(logs))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"list_count": len(logs),
		"entries":    logs,
	}))
}
