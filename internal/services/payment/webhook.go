// Package payment применяет события платёжной системы к аккаунтам и
// сверяется с платёжной системой, когда вебхук ещё не дошёл.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/billing"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/metrics"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

// Repository методы хранилища для событий оплаты.
type Repository interface {
	GetAccountByCustomerRef(ctx context.Context, customerRef string) (*models.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*models.Account, error)
	UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error)
	UpdateEntitlementByCustomerRef(ctx context.Context, customerRef string, patch models.EntitlementPatch) (*models.Account, error)
}

// Accounts поиск аккаунта по email с созданием при отсутствии.
type Accounts interface {
	FindOrCreate(ctx context.Context, email string, template models.Account) (*models.Account, bool, error)
}

// Notifier отправка уведомлений без ожидания результата.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, account *models.Account, extra map[string]string)
}

// WebhookService приём вебхуков платёжной системы.
type WebhookService struct {
	repo      Repository
	accounts  Accounts
	notifier  Notifier
	log       *slog.Logger
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookService создаёт WebhookService. tolerance ограничивает возраст подписи.
func NewWebhookService(repo Repository, accounts Accounts, notifier Notifier, secret string, tolerance time.Duration, log *slog.Logger) *WebhookService {
	return &WebhookService{
		repo:      repo,
		accounts:  accounts,
		notifier:  notifier,
		log:       log,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Ingest проверяет подпись и применяет событие. Каждое событие записывает
// абсолютное состояние полей, поэтому повторная доставка безопасна.
// Неизвестные типы событий подтверждаются без изменений.
func (s *WebhookService) Ingest(ctx context.Context, payload []byte, signature string) (eventType string, err error) {
	const op = "payment.Ingest"
	log := s.log.With(slog.String("op", op))

	if err := billing.VerifySignature(payload, signature, s.secret, s.tolerance, s.now()); err != nil {
		log.Warn("webhook signature rejected", slog.Bool("security", true), sl.Err(err))
		metrics.WebhookEvents.WithLabelValues("unknown", apperr.ErrInvalidSignature.Code).Inc()
		return "", apperr.Wrap(apperr.ErrInvalidSignature, err)
	}

	var event billing.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		metrics.WebhookEvents.WithLabelValues("unknown", apperr.ErrInvalidPayload.Code).Inc()
		return "", apperr.ErrInvalidPayload
	}
	eventType = billing.CanonicalEventType(event.Type)
	log = log.With(slog.String("event_id", event.ID), slog.String("event_type", eventType))
	defer func() {
		metrics.WebhookEvents.WithLabelValues(eventType, metrics.Outcome(apperr.CodeOf(err), err)).Inc()
	}()

	switch eventType {
	case billing.EventCheckoutCompleted:
		var session billing.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return eventType, apperr.Wrap(apperr.ErrInvalidPayload, err)
		}
		return eventType, s.checkoutCompleted(ctx, log, session)

	case billing.EventSubscriptionUpdated:
		var sub billing.Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return eventType, apperr.Wrap(apperr.ErrInvalidPayload, err)
		}
		return eventType, s.subscriptionUpdated(ctx, log, sub)

	case billing.EventSubscriptionDeleted:
		var sub billing.Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return eventType, apperr.Wrap(apperr.ErrInvalidPayload, err)
		}
		return eventType, s.subscriptionDeleted(ctx, log, sub)

	case billing.EventInvoicePaymentFailed:
		var inv billing.Invoice
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return eventType, apperr.Wrap(apperr.ErrInvalidPayload, err)
		}
		return eventType, s.invoicePaymentFailed(ctx, log, inv)
	}

	log.Info("ignoring unhandled webhook event")
	return eventType, nil
}

// checkoutCompleted находит аккаунт по ссылке на клиента, затем по внешнему
// id из metadata, затем по email; при отсутствии создаёт его сразу с полями
// подписки.
func (s *WebhookService) checkoutCompleted(ctx context.Context, log *slog.Logger, session billing.CheckoutSession) error {
	const op = "payment.checkoutCompleted"
	if session.Customer == "" {
		return apperr.ErrInvalidPayload
	}
	patch := checkoutState(session).patch(s.now())

	account, err := s.findForCheckout(ctx, session)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var updated *models.Account
	if account == nil {
		if session.CustomerEmail == "" {
			return apperr.ErrInvalidPayload
		}
		template := patch.ApplyTo(models.Account{Name: session.CustomerName})
		var created bool
		account, created, err = s.accounts.FindOrCreate(ctx, session.CustomerEmail, template)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if created {
			updated = account
			account = nil
		}
	}
	if updated == nil {
		updated, err = s.repo.UpdateEntitlement(ctx, account.ID, patch)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("checkout applied",
		append(sl.Audit("billing:"+session.Customer, updated.ID, accessFields(account), accessFields(updated)),
			slog.Bool("has_direct_access", updated.HasDirectAccess))...)
	s.notifier.Notify(ctx, models.NotifyWelcome, updated, map[string]string{"plan": updated.Plan()})
	return nil
}

// findForCheckout возвращает nil без ошибки, если аккаунт не найден.
func (s *WebhookService) findForCheckout(ctx context.Context, session billing.CheckoutSession) (*models.Account, error) {
	account, err := s.repo.GetAccountByCustomerRef(ctx, session.Customer)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if ext := session.Metadata[billing.MetadataExternalID]; ext != "" {
		account, err = s.repo.GetAccountByExternalID(ctx, ext)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *WebhookService) updateByCustomer(ctx context.Context, log *slog.Logger, customerRef string, patch models.EntitlementPatch) (*models.Account, error) {
	if customerRef == "" {
		return nil, apperr.ErrInvalidPayload
	}
	before, err := s.repo.GetAccountByCustomerRef(ctx, customerRef)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("webhook for unknown billing customer", slog.String("customer", customerRef))
		return nil, apperr.ErrUnknownCustomer
	}
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateEntitlementByCustomerRef(ctx, customerRef, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrUnknownCustomer
	}
	if err != nil {
		return nil, err
	}
	log.Info("billing state applied", sl.Audit("billing:"+customerRef, updated.ID, accessFields(before), accessFields(updated))...)
	return updated, nil
}

func (s *WebhookService) subscriptionUpdated(ctx context.Context, log *slog.Logger, sub billing.Subscription) error {
	const op = "payment.subscriptionUpdated"
	patch := models.EntitlementPatch{
		Status:            models.Set(billing.MapStatus(sub.Status)),
		KeepLifetimeGrant: true,
	}
	if end := billing.UnixTime(sub.CurrentPeriodEnd); end != nil {
		patch.EndDate = models.Set(*end)
	}
	if sub.Interval != "" {
		patch.Plan = models.Set(billing.PlanForInterval(sub.Interval))
	}
	if trial := billing.UnixTime(sub.TrialEnd); trial != nil {
		patch.TrialEndsAt = models.Set(*trial)
	}
	if sub.ID != "" {
		patch.PaymentSubscriptionRef = models.Set(sub.ID)
	}
	if _, err := s.updateByCustomer(ctx, log, sub.Customer, patch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *WebhookService) subscriptionDeleted(ctx context.Context, log *slog.Logger, sub billing.Subscription) error {
	const op = "payment.subscriptionDeleted"
	updated, err := s.updateByCustomer(ctx, log, sub.Customer, models.EntitlementPatch{
		Status: models.Set(models.StatusCanceled),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if updated.HasDirectAccess {
		log.Info("subscription canceled, direct access remains", slog.String("account_id", updated.ID))
	}
	return nil
}

func (s *WebhookService) invoicePaymentFailed(ctx context.Context, log *slog.Logger, inv billing.Invoice) error {
	const op = "payment.invoicePaymentFailed"
	if _, err := s.updateByCustomer(ctx, log, inv.Customer, models.EntitlementPatch{
		Status: models.Set(models.StatusPastDue),
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func accessFields(a *models.Account) map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"status":            a.SubscriptionStatus,
		"plan":              a.Plan(),
		"tier":              a.Tier(),
		"has_direct_access": a.HasDirectAccess,
	}
}
