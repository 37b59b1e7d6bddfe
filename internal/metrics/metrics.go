// Package metrics счётчики prometheus для решений о доступе, вебхуков,
// погашений ваучеров, выдач доступа и писем. Отдаются на /metrics через promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitlements"

var (
	// AccessDecisions решения о доступе по причине.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_decisions_total",
		Help:      "Access decisions by reason.",
	}, []string{"reason", "allowed"})

	// WebhookEvents события платёжной системы по типу и результату.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_webhook_events_total",
		Help:      "Billing webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	// Redemptions попытки погашения ваучеров по результату.
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voucher_redemptions_total",
		Help:      "Voucher redemption attempts by outcome.",
	}, []string{"outcome"})

	// Grants выдачи доступа администратором по сроку.
	Grants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_grants_total",
		Help:      "Admin grants by duration.",
	}, []string{"duration"})

	// FallbackLookups обращения к платёжной системе при отставании вебхуков.
	FallbackLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processor_fallback_lookups_total",
		Help:      "Processor fallback lookups by outcome.",
	}, []string{"outcome"})

	// Notifications обработанные отправщиком уведомления по типу и исходу:
	// sent, requeued или dropped.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications handled by the sender by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// Outcome метка результата: "ok" или код ошибки.
func Outcome(code string, err error) string {
	if err == nil {
		return "ok"
	}
	return code
}
