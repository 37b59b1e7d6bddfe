// Package models содержит доменные структуры движка доступа: аккаунт и его
// поля доступа, ваучеры, записи о погашении ваучеров и журнал выдачи доступа
// администратором.
package models

import (
	"strings"
	"time"
)

// Role роль аккаунта.
type Role string

const (
	// RoleUser обычный пользователь.
	RoleUser Role = "user"
	// RoleAdmin администратор.
	RoleAdmin Role = "admin"
)

// SubscriptionStatus статус оплаченной подписки.
type SubscriptionStatus string

const (
	StatusInactive SubscriptionStatus = "inactive"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Valid сообщает, входит ли статус в закрытый набор значений.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Описательные значения плана. План не является источником решения о доступе,
// кроме PlanLifetime, который отключает проверку даты окончания прямого доступа.
const (
	PlanMonthly  = "monthly"
	PlanYearly   = "yearly"
	PlanLifetime = "lifetime"
)

// Уровни доступа к функциям.
const (
	TierBasic = "basic"
	TierPro   = "pro"
)

// Account представляет одного логического пользователя.
//
// Аккаунт-заготовка (созданный выдачей администратора, ваучером или вебхуком
// до первого входа) отличается только пустым ExternalIDs.
type Account struct {
	ID                     string             `json:"id"`
	ExternalIDs            []string           `json:"external_ids"`
	Email                  string             `json:"email"`
	Name                   string             `json:"name,omitempty"`
	AvatarURL              string             `json:"avatar_url,omitempty"`
	Role                   Role               `json:"role"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status"`
	SubscriptionPlan       *string            `json:"subscription_plan,omitempty"`
	SubscriptionTier       *string            `json:"subscription_tier,omitempty"`
	// SubscriptionEndDate == nil у активного аккаунта означает бессрочный доступ.
	SubscriptionEndDate    *time.Time         `json:"subscription_end_date,omitempty"`
	TrialEndsAt            *time.Time         `json:"trial_ends_at,omitempty"`
	// HasDirectAccess сбрасывается только явным отзывом администратора.
	HasDirectAccess        bool               `json:"has_direct_access"`
	PaymentCustomerRef     *string            `json:"payment_customer_ref,omitempty"`
	PaymentSubscriptionRef *string            `json:"payment_subscription_ref,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// IsPlaceholder сообщает, что к аккаунту ещё не привязана ни одна внешняя личность.
func (a *Account) IsPlaceholder() bool {
	return len(a.ExternalIDs) == 0
}

// HasExternalID проверяет, привязан ли externalID к аккаунту.
func (a *Account) HasExternalID(externalID string) bool {
	for _, id := range a.ExternalIDs {
		if id == externalID {
			return true
		}
	}
	return false
}

// Plan возвращает план или пустую строку.
func (a *Account) Plan() string {
	if a.SubscriptionPlan == nil {
		return ""
	}
	return *a.SubscriptionPlan
}

// Tier возвращает уровень доступа или пустую строку.
func (a *Account) Tier() string {
	if a.SubscriptionTier == nil {
		return ""
	}
	return *a.SubscriptionTier
}

// Profile поля профиля, которые поставщик аутентификации передаёт вместе с личностью.
type Profile struct {
	Name      string
	AvatarURL string
}

// Identity проверенная внешним поставщиком личность вызывающего.
type Identity struct {
	ExternalID string
	Email      string
	Profile    Profile
}

// NormalizeEmail приводит email к каноническому виду: trim + lower case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
