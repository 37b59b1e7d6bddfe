// Package apperr описывает таксономию ошибок движка доступа.
//
// Каждая ошибка несёт Kind (класс, по которому HTTP-слой выбирает статус),
// стабильный машинный Code и человекочитаемое сообщение. Предопределённые
// ошибки сравниваются через errors.Is, а Kind и Code извлекаются через errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// Kind класс ошибки.
type Kind string

const (
	Forbidden                  Kind = "forbidden"
	NotFound                   Kind = "not_found"
	InvalidInput               Kind = "invalid_input"
	Conflict                   Kind = "conflict"
	Expired                    Kind = "expired"
	Exhausted                  Kind = "exhausted"
	Inactive                   Kind = "inactive"
	Unauthenticated            Kind = "unauthenticated"
	UpstreamVerificationFailed Kind = "upstream_verification_failed"
	UpstreamUnavailable        Kind = "upstream_unavailable"
	Internal                   Kind = "internal"
)

// Error ошибка с классом и стабильным кодом причины.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New создаёт ошибку без причины.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap создаёт ошибку на основе предопределённой, сохраняя исходную причину.
func Wrap(base *Error, err error) error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return e.Code + ": " + e.Message
}

// Unwrap возвращает причину.
func (e *Error) Unwrap() error { return e.Err }

// Is считает ошибки равными при совпадении кода причины.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// KindOf возвращает класс ошибки или Internal для неизвестных ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf возвращает код причины или "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// MessageOf возвращает сообщение для пользователя; внутренние детали не раскрываются.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

var (
	ErrForbidden            = New(Forbidden, "forbidden", "caller is not an administrator")
	ErrNotAuthenticated     = New(Unauthenticated, "not_authenticated", "caller is not authenticated")
	ErrInvalidEmail         = New(InvalidInput, "invalid_email", "email is missing or malformed")
	ErrInvalidDuration      = New(InvalidInput, "invalid_duration", "duration is not one of lifetime, 1_month, 3_months, 6_months, 1_year, revoke")
	ErrNothingToRevoke      = New(NotFound, "nothing_to_revoke", "no account exists for this email, nothing to revoke")
	ErrAccountNotFound      = New(NotFound, "account_not_found", "account not found")
	ErrMissingCode          = New(InvalidInput, "missing_code", "voucher code is required")
	ErrInvalidCode          = New(NotFound, "invalid_code", "voucher code is not valid")
	ErrInvalidVoucher       = New(InvalidInput, "invalid_voucher", "voucher definition is not valid")
	ErrVoucherExists        = New(Conflict, "voucher_exists", "voucher with this code already exists")
	ErrVoucherInactive      = New(Inactive, "voucher_inactive", "voucher is no longer active")
	ErrVoucherExpired       = New(Expired, "voucher_expired", "voucher has expired")
	ErrVoucherExhausted     = New(Exhausted, "voucher_exhausted", "voucher has reached its redemption limit")
	ErrAlreadyRedeemed      = New(Conflict, "already_redeemed", "voucher already redeemed by this account")
	ErrAccountUpdate        = New(Internal, "account_update_failed", "could not update account")
	ErrInvalidSignature     = New(UpstreamVerificationFailed, "invalid_signature", "webhook signature verification failed")
	ErrInvalidPayload       = New(InvalidInput, "invalid_payload", "webhook payload is malformed")
	ErrUnknownCustomer      = New(NotFound, "unknown_customer", "no account is linked to this billing customer")
	ErrProcessorUnavailable = New(UpstreamUnavailable, "processor_unavailable", "payment processor query failed")
)
