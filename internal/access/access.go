// Package access принимает единое решение о доступе по полям аккаунта.
//
// Решение строится цепочкой правил с явным приоритетом: первое сработавшее
// правило даёт вердикт. Функции пакета чистые: они не пишут в хранилище и
// зависят только от полей аккаунта и переданного момента времени.
package access

import (
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Reason объясняет, почему принято решение.
type Reason string

const (
	ReasonDirectGrant         Reason = "direct_grant"
	ReasonDirectGrantExpired  Reason = "direct_grant_expired"
	ReasonSubscriptionActive  Reason = "subscription_active"
	ReasonTrialActive         Reason = "trial_active"
	ReasonSubscriptionExpired Reason = "subscription_expired"
	ReasonTrialExpired        Reason = "trial_expired"
	ReasonNoEntitlement       Reason = "no_entitlement"
)

// Decision вердикт и причина.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// rule одно правило цепочки: applies решает, отвечает ли правило за аккаунт,
// decide выносит вердикт.
type rule struct {
	name    string
	applies func(a *models.Account, now time.Time) bool
	decide  func(a *models.Account, now time.Time) Decision
}

var rules = []rule{
	{
		name: "direct_access",
		applies: func(a *models.Account, _ time.Time) bool {
			return a.HasDirectAccess
		},
		decide: func(a *models.Account, now time.Time) Decision {
			if a.Plan() != models.PlanLifetime && expired(a.SubscriptionEndDate, now) {
				return Decision{Allowed: false, Reason: ReasonDirectGrantExpired}
			}
			return Decision{Allowed: true, Reason: ReasonDirectGrant}
		},
	},
	{
		name: "trialing",
		applies: func(a *models.Account, _ time.Time) bool {
			return a.SubscriptionStatus == models.StatusTrialing
		},
		// Оплаченный период, заданный явно, продлевает доступ после конца
		// пробного. Без обеих дат пробный период считается открытым.
		decide: func(a *models.Account, now time.Time) Decision {
			if a.TrialEndsAt == nil {
				if expired(a.SubscriptionEndDate, now) {
					return Decision{Allowed: false, Reason: ReasonTrialExpired}
				}
				return Decision{Allowed: true, Reason: ReasonTrialActive}
			}
			if a.TrialEndsAt.After(now) {
				return Decision{Allowed: true, Reason: ReasonTrialActive}
			}
			if a.SubscriptionEndDate != nil && a.SubscriptionEndDate.After(now) {
				return Decision{Allowed: true, Reason: ReasonSubscriptionActive}
			}
			return Decision{Allowed: false, Reason: ReasonTrialExpired}
		},
	},
	{
		name: "active_subscription",
		applies: func(a *models.Account, _ time.Time) bool {
			return a.SubscriptionStatus == models.StatusActive
		},
		decide: func(a *models.Account, now time.Time) Decision {
			if expired(a.SubscriptionEndDate, now) {
				return Decision{Allowed: false, Reason: ReasonSubscriptionExpired}
			}
			return Decision{Allowed: true, Reason: ReasonSubscriptionActive}
		},
	},
}

// Evaluate выносит решение на момент now.
func Evaluate(a *models.Account, now time.Time) Decision {
	if a == nil {
		return Decision{Allowed: false, Reason: ReasonNoEntitlement}
	}
	for _, r := range rules {
		if r.applies(a, now) {
			return r.decide(a, now)
		}
	}
	return Decision{Allowed: false, Reason: ReasonNoEntitlement}
}

// HasAccess выносит решение на текущий момент.
func HasAccess(a *models.Account) Decision {
	return Evaluate(a, time.Now())
}

// expired: дата задана и уже прошла. nil означает отсутствие срока.
func expired(end *time.Time, now time.Time) bool {
	return end != nil && !end.After(now)
}
