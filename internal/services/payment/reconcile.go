package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/billing"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/metrics"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Processor запросы только на чтение к платёжной системе.
type Processor interface {
	ListCustomersByEmail(ctx context.Context, email string) ([]billing.Customer, error)
	ListSubscriptionsByCustomer(ctx context.Context, customerID string) ([]billing.Subscription, error)
}

// Cooldown короткая блокировка повторных запросов для одного email.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AccountUpdater обновление полей доступа по id аккаунта.
type AccountUpdater interface {
	UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error)
}

// Reconciler ищет оплату в платёжной системе, когда вебхук ещё не применён.
type Reconciler struct {
	repo      AccountUpdater
	processor Processor
	cooldown  Cooldown
	ttl       time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewReconciler создаёт Reconciler. cooldown может быть nil, тогда каждый
// вызов обращается к платёжной системе.
func NewReconciler(repo AccountUpdater, processor Processor, cooldown Cooldown, ttl time.Duration, log *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		processor: processor,
		cooldown:  cooldown,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
}

// Reconcile ищет действующую подписку клиента с email аккаунта и применяет её
// так же, как checkout.completed. Возвращает обновлённый аккаунт и true, если
// подписка найдена. Ошибка платёжной системы возвращается как
// apperr.ErrProcessorUnavailable.
func (r *Reconciler) Reconcile(ctx context.Context, account *models.Account) (res *models.Account, found bool, err error) {
	const op = "payment.Reconcile"
	log := r.log.With(slog.String("op", op), slog.String("account_id", account.ID))

	outcome := "not_found"
	defer func() {
		if err != nil {
			outcome = apperr.CodeOf(err)
		}
		metrics.FallbackLookups.WithLabelValues(outcome).Inc()
	}()

	if r.cooldown != nil && r.ttl > 0 {
		ok, err := r.cooldown.Acquire(ctx, "billing:fallback:"+account.Email, r.ttl)
		if err != nil {
			log.Warn("fallback cooldown unavailable", sl.Err(err))
		} else if !ok {
			outcome = "cooldown"
			return account, false, nil
		}
	}

	customers, err := r.processor.ListCustomersByEmail(ctx, account.Email)
	if err != nil {
		log.Error("processor customer lookup failed", sl.Err(err))
		return account, false, apperr.Wrap(apperr.ErrProcessorUnavailable, err)
	}

	now := r.now()
	for _, c := range customers {
		subs, err := r.processor.ListSubscriptionsByCustomer(ctx, c.ID)
		if err != nil {
			log.Error("processor subscription lookup failed", slog.String("customer", c.ID), sl.Err(err))
			return account, false, apperr.Wrap(apperr.ErrProcessorUnavailable, err)
		}
		sub, ok := pickSubscription(subs, now)
		if !ok {
			continue
		}
		if sub.Customer == "" {
			sub.Customer = c.ID
		}

		updated, err := r.repo.UpdateEntitlement(ctx, account.ID, subscriptionState(sub).patch(now))
		if err != nil {
			return account, false, fmt.Errorf("%s: %w", op, err)
		}
		outcome = "found"
		log.Info("subscription found at processor before webhook",
			sl.Audit("billing:"+sub.Customer, account.ID, accessFields(account), accessFields(updated))...)
		return updated, true, nil
	}
	return account, false, nil
}

// pickSubscription первая подписка в статусе active или trialing, чей период не закончился.
func pickSubscription(subs []billing.Subscription, now time.Time) (billing.Subscription, bool) {
	for _, sub := range subs {
		switch billing.MapStatus(sub.Status) {
		case models.StatusActive, models.StatusTrialing:
		default:
			continue
		}
		if end := billing.UnixTime(sub.CurrentPeriodEnd); end != nil && !end.After(now) {
			continue
		}
		return sub, true
	}
	return billing.Subscription{}, false
}
