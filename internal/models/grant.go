package models

import "time"

// GrantDuration закрытый набор сроков выдачи доступа администратором.
type GrantDuration string

const (
	GrantLifetime GrantDuration = "lifetime"
	Grant1Month   GrantDuration = "1_month"
	Grant3Months  GrantDuration = "3_months"
	Grant6Months  GrantDuration = "6_months"
	Grant1Year    GrantDuration = "1_year"
	GrantRevoke   GrantDuration = "revoke"
)

// ParseGrantDuration проверяет, что строка входит в закрытый набор.
func ParseGrantDuration(s string) (GrantDuration, bool) {
	d := GrantDuration(s)
	switch d {
	case GrantLifetime, Grant1Month, Grant3Months, Grant6Months, Grant1Year, GrantRevoke:
		return d, true
	}
	return "", false
}

// Months количество месяцев для срочной выдачи (0 для lifetime и revoke).
func (d GrantDuration) Months() int {
	switch d {
	case Grant1Month:
		return 1
	case Grant3Months:
		return 3
	case Grant6Months:
		return 6
	case Grant1Year:
		return 12
	}
	return 0
}

// Plan план, который записывается в аккаунт при выдаче.
func (d GrantDuration) Plan() string {
	switch d {
	case GrantLifetime:
		return PlanLifetime
	case Grant1Year:
		return PlanYearly
	}
	return PlanMonthly
}

// AdminGrantLog запись аудита выдачи или отзыва доступа. Никогда не изменяется.
type AdminGrantLog struct {
	ID          string        `json:"id"`
	AdminID     string        `json:"admin_id"`
	AdminEmail  string        `json:"admin_email"`
	TargetEmail string        `json:"target_email"`
	Duration    GrantDuration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}
