package billing

import (
	"encoding/json"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Типы событий, которые обрабатывает движок доступа.
const (
	EventCheckoutCompleted    = "checkout.completed"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionDeleted  = "subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// aliases имена событий платёжной системы, совпадающие по смыслу с нашими.
var aliases = map[string]string{
	"checkout.session.completed":    EventCheckoutCompleted,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
}

// CanonicalEventType приводит тип события к одному из обрабатываемых имён.
func CanonicalEventType(t string) string {
	if c, ok := aliases[t]; ok {
		return c
	}
	return t
}

// Event конверт вебхука.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Ключи metadata, которые заполняет страница оплаты.
const (
	MetadataExternalID = "external_id"
	MetadataTier       = "tier"
	MetadataPlan       = "plan"
)

// CheckoutSession объект события checkout.completed.
type CheckoutSession struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Subscription     string            `json:"subscription"`
	CustomerEmail    string            `json:"customer_email"`
	CustomerName     string            `json:"customer_name,omitempty"`
	Interval         string            `json:"interval,omitempty"`
	CurrentPeriodEnd int64             `json:"current_period_end,omitempty"`
	TrialEnd         int64             `json:"trial_end,omitempty"`
	Metadata         map[string]string `json:"metadata"`
}

// Subscription подписка в платёжной системе.
type Subscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	Interval         string            `json:"interval"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	TrialEnd         int64             `json:"trial_end,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Invoice объект события invoice.payment_failed.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription,omitempty"`
}

// Customer клиент платёжной системы.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// MapStatus переводит статус подписки платёжной системы в статус аккаунта.
func MapStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active":
		return models.StatusActive
	case "trialing":
		return models.StatusTrialing
	case "past_due", "unpaid":
		return models.StatusPastDue
	case "canceled", "incomplete_expired":
		return models.StatusCanceled
	}
	return models.StatusInactive
}

// PlanForInterval план по интервалу списаний.
func PlanForInterval(interval string) string {
	switch interval {
	case "year", "yearly", "annual":
		return models.PlanYearly
	case "lifetime", "one_time":
		return models.PlanLifetime
	}
	return models.PlanMonthly
}

// UnixTime переводит секунды unix в время; 0 означает отсутствие значения.
func UnixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
