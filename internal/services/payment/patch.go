package payment

import (
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/billing"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// paidState состояние оплаченной подписки, общее для checkout.completed и
// запроса к платёжной системе при отставании вебхуков.
type paidState struct {
	CustomerRef     string
	SubscriptionRef string
	Plan            string
	Tier            string
	PeriodEnd       *time.Time
	TrialEnd        *time.Time
}

// patch поля аккаунта для оплаченной подписки. HasDirectAccess не меняется,
// бессрочный прямой доступ сохраняет свой план и дату окончания.
func (p paidState) patch(now time.Time) models.EntitlementPatch {
	out := models.EntitlementPatch{
		Status:             models.Set(models.StatusActive),
		Plan:               models.Set(p.Plan),
		Tier:               models.Set(p.Tier),
		TrialEndsAt:        models.Clear[time.Time](),
		PaymentCustomerRef: models.Set(p.CustomerRef),
		KeepLifetimeGrant:  true,
	}
	if p.TrialEnd != nil && p.TrialEnd.After(now) {
		out.Status = models.Set(models.StatusTrialing)
		out.TrialEndsAt = models.Set(*p.TrialEnd)
	}
	if p.PeriodEnd != nil {
		out.EndDate = models.Set(*p.PeriodEnd)
	}
	if p.SubscriptionRef != "" {
		out.PaymentSubscriptionRef = models.Set(p.SubscriptionRef)
	}
	return out
}

func tierFrom(metadata map[string]string) string {
	switch metadata[billing.MetadataTier] {
	case models.TierBasic:
		return models.TierBasic
	}
	return models.TierPro
}

func planFrom(metadata map[string]string, interval string) string {
	switch p := metadata[billing.MetadataPlan]; p {
	case models.PlanMonthly, models.PlanYearly, models.PlanLifetime:
		return p
	}
	return billing.PlanForInterval(interval)
}

func checkoutState(s billing.CheckoutSession) paidState {
	return paidState{
		CustomerRef:     s.Customer,
		SubscriptionRef: s.Subscription,
		Plan:            planFrom(s.Metadata, s.Interval),
		Tier:            tierFrom(s.Metadata),
		PeriodEnd:       billing.UnixTime(s.CurrentPeriodEnd),
		TrialEnd:        billing.UnixTime(s.TrialEnd),
	}
}

func subscriptionState(sub billing.Subscription) paidState {
	return paidState{
		CustomerRef:     sub.Customer,
		SubscriptionRef: sub.ID,
		Plan:            planFrom(sub.Metadata, sub.Interval),
		Tier:            tierFrom(sub.Metadata),
		PeriodEnd:       billing.UnixTime(sub.CurrentPeriodEnd),
		TrialEnd:        billing.UnixTime(sub.TrialEnd),
	}
}
