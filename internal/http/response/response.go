// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков: успешных ответов, ошибок
// движка доступа и сообщений валидации.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status статус запроса ("OK" или "Error").
// Поле Error текст ошибки (опционально, при неуспехе).
// Поле Code стабильный код причины ошибки (опционально).
// Поле Data данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Code   string `json:"code,omitempty" example:"voucher_expired"`
	Error  string `json:"error" example:"voucher has expired"`
}

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

var statusByKind = map[apperr.Kind]int{
	apperr.Forbidden:                  http.StatusForbidden,
	apperr.NotFound:                   http.StatusNotFound,
	apperr.InvalidInput:               http.StatusBadRequest,
	apperr.Conflict:                   http.StatusConflict,
	apperr.Expired:                    http.StatusGone,
	apperr.Exhausted:                  http.StatusGone,
	apperr.Inactive:                   http.StatusGone,
	apperr.Unauthenticated:            http.StatusUnauthorized,
	apperr.UpstreamVerificationFailed: http.StatusBadRequest,
	apperr.UpstreamUnavailable:        http.StatusBadGateway,
	apperr.Internal:                   http.StatusInternalServerError,
}

// HTTPStatus возвращает HTTP-статус для ошибки по её классу.
func HTTPStatus(err error) int {
	if s, ok := statusByKind[apperr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Fail пишет ошибку с кодом причины и подходящим статусом. Внутренние детали
// ошибки в ответ не попадают.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, HTTPStatus(err))
	render.JSON(w, r, ErrorResponse{
		Status: StatusError,
		Code:   apperr.CodeOf(err),
		Error:  apperr.MessageOf(err),
	})
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Code:   "invalid_request",
		Error:  strings.Join(errsMsgs, ", "),
	}
}
