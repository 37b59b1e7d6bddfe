// Package voucher проверка, погашение и создание ваучеров.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/metrics"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

// summaryTTL срок жизни описания ваучера в кеше.
const summaryTTL = 30 * time.Second

// Repository методы хранилища для ваучеров.
type Repository interface {
	CreateVoucher(ctx context.Context, voucher models.Voucher) (*models.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	IncrementRedemptionCount(ctx context.Context, voucherID string) (bool, error)
	DecrementRedemptionCount(ctx context.Context, voucherID string) error
	GetRedemption(ctx context.Context, accountID, voucherID string) (*models.VoucherRedemption, error)
	CreateRedemption(ctx context.Context, redemption models.VoucherRedemption) (*models.VoucherRedemption, error)
	UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error)
}

// Resolver сопоставление вызывающего с аккаунтом.
type Resolver interface {
	Resolve(ctx context.Context, id models.Identity) (*models.Account, error)
}

// Cache кеш описаний ваучеров.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// CreateInput параметры нового ваучера.
type CreateInput struct {
	Code           string    `json:"code" validate:"required,max=64"`
	Tier           string    `json:"tier" validate:"required,oneof=basic pro"`
	DurationMonths int       `json:"duration_months" validate:"required,min=1"`
	MaxRedemptions int       `json:"max_redemptions" validate:"required,min=1"`
	ExpiresAt      time.Time `json:"expires_at" validate:"required"`
	Description    *string   `json:"description,omitempty"`
}

// RedeemResult итог погашения.
type RedeemResult struct {
	Account *models.Account       `json:"account"`
	Voucher models.VoucherSummary `json:"voucher"`
}

// Service логика ваучеров.
type Service struct {
	repo     Repository
	resolver Resolver
	cache    Cache
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт Service. cache может быть nil.
func New(repo Repository, resolver Resolver, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		cache:    cache,
		log:      log,
		now:      time.Now,
	}
}

func cacheKey(code string) string {
	return "voucher:" + code
}

// check проверяет состояние ваучера в порядке: активен, не истёк, не исчерпан.
func check(v *models.Voucher, now time.Time) error {
	switch {
	case !v.IsActive:
		return apperr.ErrVoucherInactive
	case v.ExpiresAt.Before(now):
		return apperr.ErrVoucherExpired
	case v.RedemptionCount >= v.MaxRedemptions:
		return apperr.ErrVoucherExhausted
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, code string) (*models.Voucher, error) {
	const op = "voucher.lookup"
	if code == "" {
		return nil, apperr.ErrMissingCode
	}
	v, err := s.repo.GetVoucherByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Validate проверяет код и возвращает описание ваучера.
func (s *Service) Validate(ctx context.Context, code string) (*models.VoucherSummary, error) {
	const op = "voucher.Validate"
	log := s.log.With(slog.String("op", op))
	code = models.CanonicalVoucherCode(code)

	if s.cache != nil && code != "" {
		var cached models.VoucherSummary
		found, err := s.cache.Get(ctx, cacheKey(code), &cached)
		if err != nil {
			log.Warn("voucher cache read failed", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	v, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := check(v, s.now()); err != nil {
		return nil, err
	}

	summary := v.Summary()
	// последний свободный слот не кешируется: погашение могло бы сбросить
	// ключ раньше, чем он будет записан
	if s.cache != nil && v.MaxRedemptions-v.RedemptionCount > 1 {
		if err := s.cache.Set(ctx, cacheKey(code), summary, summaryTTL); err != nil {
			log.Warn("voucher cache write failed", sl.Err(err))
		}
	}
	return &summary, nil
}

// Patch поля доступа, которые записывает погашение ваучера. HasDirectAccess не
// меняется, бессрочный прямой доступ сохраняет свой план и дату окончания.
func Patch(v *models.Voucher, now time.Time) models.EntitlementPatch {
	plan := models.PlanMonthly
	if v.DurationMonths >= 12 {
		plan = models.PlanYearly
	}
	return models.EntitlementPatch{
		Status:      models.Set(models.StatusActive),
		Plan:        models.Set(plan),
		Tier:        models.Set(v.Tier),
		EndDate:     models.Set(now.AddDate(0, v.DurationMonths, 0)),
		TrialEndsAt: models.Clear[time.Time](),

		KeepLifetimeGrant: true,
	}
}

// Redeem погашает код для вызывающего.
//
// Счётчик погашений увеличивается атомарно и только пока не достигнут предел.
// Запись о погашении пишется последней: её уникальность по паре аккаунт+ваучер
// исключает повторное погашение. Если запись или обновление аккаунта не
// удались, счётчик возвращается назад.
func (s *Service) Redeem(ctx context.Context, id models.Identity, code string) (res *RedeemResult, err error) {
	const op = "voucher.Redeem"
	log := s.log.With(slog.String("op", op))
	defer func() {
		metrics.Redemptions.WithLabelValues(metrics.Outcome(apperr.CodeOf(err), err)).Inc()
	}()

	account, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	code = models.CanonicalVoucherCode(code)
	v, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	// повторное погашение тем же аккаунтом отклоняется раньше проверок
	// ваучера: исчерпать его мог сам вызывающий
	_, err = s.repo.GetRedemption(ctx, account.ID, v.ID)
	if err == nil {
		return nil, apperr.ErrAlreadyRedeemed
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if err := check(v, now); err != nil {
		return nil, err
	}

	ok, err := s.repo.IncrementRedemptionCount(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, apperr.ErrVoucherExhausted
	}

	updated, err := s.repo.UpdateEntitlement(ctx, account.ID, Patch(v, now))
	if err != nil {
		log.Error("failed to apply voucher to account", slog.String("account_id", account.ID), sl.Err(err))
		s.release(ctx, log, v.ID)
		return nil, apperr.Wrap(apperr.ErrAccountUpdate, err)
	}

	_, err = s.repo.CreateRedemption(ctx, models.VoucherRedemption{
		AccountID:       account.ID,
		VoucherID:       v.ID,
		GrantedTier:     v.Tier,
		GrantedDuration: v.DurationMonths,
		RedeemedAt:      now,
	})
	if err != nil {
		s.release(ctx, log, v.ID)
		if errors.Is(err, storage.ErrDuplicate) {
			log.Info("concurrent redemption rejected", slog.String("account_id", account.ID), slog.String("code", code))
			return nil, apperr.ErrAlreadyRedeemed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, code)
	log.Info("voucher redeemed",
		append(sl.Audit(id.ExternalID, account.ID, accessFields(account), accessFields(updated)),
			slog.String("code", code))...)

	return &RedeemResult{Account: updated, Voucher: v.Summary()}, nil
}

func (s *Service) release(ctx context.Context, log *slog.Logger, voucherID string) {
	if err := s.repo.DecrementRedemptionCount(context.WithoutCancel(ctx), voucherID); err != nil {
		log.Error("failed to release redemption slot", slog.String("voucher_id", voucherID), sl.Err(err))
	}
}

func (s *Service) invalidate(ctx context.Context, log *slog.Logger, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey(code)); err != nil {
		log.Warn("voucher cache invalidate failed", sl.Err(err))
	}
}

// Create добавляет ваучер. Вызывающий должен быть администратором.
func (s *Service) Create(ctx context.Context, actor string, isAdmin bool, in CreateInput) (*models.Voucher, error) {
	const op = "voucher.Create"
	log := s.log.With(slog.String("op", op))

	if !isAdmin {
		return nil, apperr.ErrForbidden
	}
	code := models.CanonicalVoucherCode(in.Code)
	if code == "" {
		return nil, apperr.ErrMissingCode
	}
	if (in.Tier != models.TierBasic && in.Tier != models.TierPro) || in.DurationMonths < 1 || in.MaxRedemptions < 1 {
		return nil, apperr.ErrInvalidVoucher
	}

	v, err := s.repo.CreateVoucher(ctx, models.Voucher{
		Code:           code,
		Tier:           in.Tier,
		DurationMonths: in.DurationMonths,
		MaxRedemptions: in.MaxRedemptions,
		ExpiresAt:      in.ExpiresAt,
		IsActive:       true,
		Description:    in.Description,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, apperr.ErrVoucherExists
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, log, code)
	log.Info("voucher created", sl.Audit(actor, code, nil, v.Summary())...)
	return v, nil
}

func accessFields(a *models.Account) map[string]any {
	return map[string]any{
		"status": a.SubscriptionStatus,
		"plan":   a.Plan(),
		"tier":   a.Tier(),
	}
}
