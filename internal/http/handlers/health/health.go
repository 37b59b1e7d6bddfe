// Package health отвечает на проверку живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
)

// Pinger проверка зависимости, например базы данных.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler обработчик /health.
type Handler struct {
	log *slog.Logger
	db  Pinger
}

// New создаёт Handler. db может быть nil.
func New(log *slog.Logger, db Pinger) *Handler {
	return &Handler{
		log: log,
		db:  db,
	}
}

// ServeHTTP godoc
// @Summary Проверка живости
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.ErrorResponse
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.log.Error("database ping failed", slog.String("op", op), sl.Err(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("database unavailable"))
			return
		}
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": "ok",
	}))
}
