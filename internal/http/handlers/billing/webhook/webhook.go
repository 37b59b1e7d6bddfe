// Package webhook реализует HTTP-обработчик событий платёжной системы.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/quran-entitlements/internal/billing"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
)

// maxBodyBytes предел размера тела события.
const maxBodyBytes = 1 << 20

// Service приём событий.
type Service interface {
	Ingest(ctx context.Context, payload []byte, signature string) (string, error)
}

// Ack ответ на принятое событие.
type Ack struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
}

// Handler обработчик POST /billing/webhook.
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
// @Summary Вебхук платёжной системы
// @Description Подпись в заголовке X-Billing-Signature проверяется до разбора тела.
// @Tags Billing
// @Accept json
// @Produce json
// @Param X-Billing-Signature header string true "t=<unix>,v1=<hex>"
// @Success 200 {object} Ack
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или тело"
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Failure 500 {object} response.ErrorResponse
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		response.Fail(w, r, apperr.ErrInvalidPayload)
		return
	}
	defer r.Body.Close()

	eventType, err := h.service.Ingest(r.Context(), body, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		log.Error("webhook not applied", slog.String("type", eventType), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, Ack{Received: true, Type: eventType})
}
