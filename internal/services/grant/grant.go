// Package grant выдача и отзыв доступа администратором по email, включая
// аккаунты, которые ещё не входили в систему.
package grant

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

// Repository методы хранилища для выдачи доступа.
type Repository interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error)
	CreateAdminGrantLog(ctx context.Context, entry models.AdminGrantLog) (string, error)
	ListAdminGrantLogs(ctx context.Context, limit, offset int) ([]*models.AdminGrantLog, error)
}

// Accounts создание заготовок аккаунтов.
type Accounts interface {
	NormalizeEmail(email string) (string, error)
	FindOrCreate(ctx context.Context, email string, template models.Account) (*models.Account, bool, error)
}

// Allowlist список email администраторов.
type Allowlist interface {
	Contains(email string) bool
}

// Notifier отправка уведомлений без ожидания результата.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, account *models.Account, extra map[string]string)
}

// Admin вызывающий администратор.
type Admin struct {
	ID      string
	Email   string
	IsAdmin bool
}

// Result итог выдачи.
type Result struct {
	Account  *models.Account      `json:"account"`
	Duration models.GrantDuration `json:"duration"`

	// HasLinkedIdentity false, если пользователь ещё ни разу не входил.
	HasLinkedIdentity bool `json:"has_linked_identity"`
	Created           bool `json:"created"`
}

// Service выдача доступа администратором.
type Service struct {
	repo     Repository
	accounts Accounts
	admins   Allowlist
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт Service.
func New(repo Repository, accounts Accounts, admins Allowlist, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		admins:   admins,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// IsAdmin администратор ли владелец аккаунта: по роли или по списку email.
func (s *Service) IsAdmin(a *models.Account) bool {
	if a == nil {
		return false
	}
	return a.Role == models.RoleAdmin || (s.admins != nil && s.admins.Contains(a.Email))
}

// Patch поля доступа для срока d на момент now.
func Patch(d models.GrantDuration, now time.Time) models.EntitlementPatch {
	if d == models.GrantRevoke {
		return models.EntitlementPatch{
			Status:          models.Set(models.StatusInactive),
			Plan:            models.Clear[string](),
			Tier:            models.Clear[string](),
			EndDate:         models.Clear[time.Time](),
			TrialEndsAt:     models.Clear[time.Time](),
			HasDirectAccess: models.Set(false),
		}
	}
	p := models.EntitlementPatch{
		Status:          models.Set(models.StatusActive),
		Plan:            models.Set(d.Plan()),
		Tier:            models.Set(models.TierPro),
		EndDate:         models.Clear[time.Time](),
		TrialEndsAt:     models.Clear[time.Time](),
		HasDirectAccess: models.Set(true),
	}
	if m := d.Months(); m > 0 {
		p.EndDate = models.Set(now.AddDate(0, m, 0))
	}
	return p
}

// Grant выдаёт или отзывает доступ для targetEmail.
func (s *Service) Grant(ctx context.Context, caller Admin, targetEmail, duration string) (*Result, error) {
	const op = "grant.Grant"
	log := s.log.With(slog.String("op", op), slog.String("admin", caller.Email))

	if !caller.IsAdmin {
		log.Warn("grant rejected: caller is not an admin", slog.String("target", targetEmail))
		return nil, apperr.ErrForbidden
	}
	email, err := s.accounts.NormalizeEmail(targetEmail)
	if err != nil {
		return nil, err
	}
	d, ok := models.ParseGrantDuration(duration)
	if !ok {
		return nil, apperr.ErrInvalidDuration
	}

	var (
		account *models.Account
		created bool
	)
	if d == models.GrantRevoke {
		account, err = s.repo.GetAccountByEmail(ctx, email)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.ErrNothingToRevoke
		}
	} else {
		account, created, err = s.accounts.FindOrCreate(ctx, email, models.Account{})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	updated, err := s.repo.UpdateEntitlement(ctx, account.ID, Patch(d, now))
	if err != nil {
		log.Error("failed to apply grant", slog.String("account_id", account.ID), sl.Err(err))
		return nil, apperr.Wrap(apperr.ErrAccountUpdate, err)
	}

	entry := models.AdminGrantLog{
		AdminID:     caller.ID,
		AdminEmail:  caller.Email,
		TargetEmail: email,
		Duration:    d,
		Timestamp:   now,
	}
	if _, err := s.repo.CreateAdminGrantLog(ctx, entry); err != nil {
		log.Error("failed to write admin grant log", slog.String("target", email), sl.Err(err))
	}
	log.Info("direct access changed",
		append(sl.Audit(caller.Email, email, summary(account), summary(updated)),
			slog.String("duration", string(d)),
			slog.Bool("placeholder_created", created))...)
	metrics.Grants.WithLabelValues(string(d)).Inc()

	kind := models.NotifyAccessGranted
	if d == models.GrantRevoke {
		kind = models.NotifyAccessRevoked
	}
	s.notifier.Notify(ctx, kind, updated, map[string]string{"duration": string(d)})

	return &Result{
		Account:           updated,
		Duration:          d,
		HasLinkedIdentity: !updated.IsPlaceholder(),
		Created:           created,
	}, nil
}

// ListLogs возвращает журнал выдач, новые первыми.
func (s *Service) ListLogs(ctx context.Context, caller Admin, limit, offset int) ([]*models.AdminGrantLog, error) {
	const op = "grant.ListLogs"
	if !caller.IsAdmin {
		return nil, apperr.ErrForbidden
	}
	logs, err := s.repo.ListAdminGrantLogs(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return logs, nil
}

// summary поля доступа для записи аудита.
func summary(a *models.Account) map[string]any {
	if a == nil {
		return nil
	}
	out := map[string]any{
		"status":            a.SubscriptionStatus,
		"plan":              a.Plan(),
		"tier":              a.Tier(),
		"has_direct_access": a.HasDirectAccess,
	}
	if a.SubscriptionEndDate != nil {
		out["end_date"] = a.SubscriptionEndDate.Format(time.RFC3339)
	}
	return out
}
