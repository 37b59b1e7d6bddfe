package models

import (
	"strings"
	"time"
)

// Voucher одноразовый для каждого аккаунта код, выдающий уровень доступа на
// несколько месяцев. Общее число погашений ограничено MaxRedemptions.
type Voucher struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Tier            string    `json:"tier"`
	DurationMonths  int       `json:"duration_months"`
	MaxRedemptions  int       `json:"max_redemptions"`
	RedemptionCount int       `json:"redemption_count"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
	Description     *string   `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// VoucherSummary то, что пользователь видит при проверке кода.
type VoucherSummary struct {
	Code           string  `json:"code"`
	Tier           string  `json:"tier"`
	DurationMonths int     `json:"duration_months"`
	Description    *string `json:"description,omitempty"`
}

// Summary возвращает публичное описание ваучера.
func (v *Voucher) Summary() VoucherSummary {
	return VoucherSummary{
		Code:           v.Code,
		Tier:           v.Tier,
		DurationMonths: v.DurationMonths,
		Description:    v.Description,
	}
}

// VoucherRedemption запись о погашении. Пара (AccountID, VoucherID) уникальна.
type VoucherRedemption struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	VoucherID       string    `json:"voucher_id"`
	GrantedTier     string    `json:"granted_tier"`
	GrantedDuration int       `json:"granted_duration"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}

// CanonicalVoucherCode приводит код к виду, в котором он хранится: trim + upper case.
func CanonicalVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
