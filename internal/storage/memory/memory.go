// Package memory хранилище в памяти с теми же ограничениями уникальности и
// атомарным счётчиком погашений, что и PostgreSQL. Используется в тестах.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

type redemptionKey struct {
	accountID string
	voucherID string
}

// Storage потокобезопасное хранилище в памяти.
type Storage struct {
	mu          sync.Mutex
	now         func() time.Time
	accounts    map[string]*models.Account
	vouchers    map[string]*models.Voucher
	redemptions map[redemptionKey]*models.VoucherRedemption
	grantLogs   []*models.AdminGrantLog
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		now:         time.Now,
		accounts:    make(map[string]*models.Account),
		vouchers:    make(map[string]*models.Voucher),
		redemptions: make(map[redemptionKey]*models.VoucherRedemption),
	}
}

func checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.ExternalIDs = append([]string{}, a.ExternalIDs...)
	c.SubscriptionPlan = clonePtr(a.SubscriptionPlan)
	c.SubscriptionTier = clonePtr(a.SubscriptionTier)
	c.SubscriptionEndDate = clonePtr(a.SubscriptionEndDate)
	c.TrialEndsAt = clonePtr(a.TrialEndsAt)
	c.PaymentCustomerRef = clonePtr(a.PaymentCustomerRef)
	c.PaymentSubscriptionRef = clonePtr(a.PaymentSubscriptionRef)
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// CreateAccount добавляет аккаунт; email уникален без учёта регистра.
func (s *Storage) CreateAccount(ctx context.Context, account models.Account) (*models.Account, error) {
	const op = "memory.CreateAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(account.Email)
	for _, a := range s.accounts {
		if models.NormalizeEmail(a.Email) == email {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
		}
	}

	created := cloneAccount(&account)
	created.ID = uuid.NewString()
	created.Email = email
	if created.Role == "" {
		created.Role = models.RoleUser
	}
	if created.SubscriptionStatus == "" {
		created.SubscriptionStatus = models.StatusInactive
	}
	now := s.now()
	created.CreatedAt = now
	created.UpdatedAt = now
	s.accounts[created.ID] = created
	return cloneAccount(created), nil
}

func (s *Storage) findAccount(ctx context.Context, op string, match func(*models.Account) bool) (*models.Account, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.Account
	for _, a := range s.accounts {
		if match(a) && (found == nil || a.CreatedAt.Before(found.CreatedAt)) {
			found = a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return cloneAccount(found), nil
}

// GetAccountByID возвращает аккаунт по id.
func (s *Storage) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.findAccount(ctx, "memory.GetAccountByID", func(a *models.Account) bool {
		return a.ID == id
	})
}

// GetAccountByExternalID ищет аккаунт по привязанной внешней личности.
func (s *Storage) GetAccountByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	return s.findAccount(ctx, "memory.GetAccountByExternalID", func(a *models.Account) bool {
		return a.HasExternalID(externalID)
	})
}

// GetAccountByEmail ищет аккаунт по email без учёта регистра.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	return s.findAccount(ctx, "memory.GetAccountByEmail", func(a *models.Account) bool {
		return models.NormalizeEmail(a.Email) == email
	})
}

// GetAccountByCustomerRef ищет аккаунт по клиенту платёжной системы.
func (s *Storage) GetAccountByCustomerRef(ctx context.Context, customerRef string) (*models.Account, error) {
	return s.findAccount(ctx, "memory.GetAccountByCustomerRef", func(a *models.Account) bool {
		return a.PaymentCustomerRef != nil && *a.PaymentCustomerRef == customerRef
	})
}

// LinkExternalID привязывает внешнюю личность и заполняет пустые поля профиля.
func (s *Storage) LinkExternalID(ctx context.Context, id, externalID string, profile models.Profile) (*models.Account, error) {
	const op = "memory.LinkExternalID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if !a.HasExternalID(externalID) {
		a.ExternalIDs = append(a.ExternalIDs, externalID)
	}
	if a.Name == "" {
		a.Name = profile.Name
	}
	if a.AvatarURL == "" {
		a.AvatarURL = profile.AvatarURL
	}
	a.UpdatedAt = s.now()
	return cloneAccount(a), nil
}

// UpdateEntitlement применяет патч к аккаунту с данным id.
func (s *Storage) UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error) {
	const op = "memory.UpdateEntitlement"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return s.applyLocked(a, patch), nil
}

// UpdateEntitlementByCustomerRef применяет патч к аккаунту клиента платёжной системы.
func (s *Storage) UpdateEntitlementByCustomerRef(ctx context.Context, customerRef string, patch models.EntitlementPatch) (*models.Account, error) {
	const op = "memory.UpdateEntitlementByCustomerRef"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.PaymentCustomerRef != nil && *a.PaymentCustomerRef == customerRef {
			return s.applyLocked(a, patch), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func (s *Storage) applyLocked(a *models.Account, patch models.EntitlementPatch) *models.Account {
	updated := patch.ApplyTo(*cloneAccount(a))
	updated.UpdatedAt = s.now()
	s.accounts[a.ID] = &updated
	return cloneAccount(&updated)
}

// ListAccountsExpiringBetween возвращает аккаунты с доступом, истекающим в [from, to).
func (s *Storage) ListAccountsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	const op = "memory.ListAccountsExpiringBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Account
	for _, a := range s.accounts {
		end := a.SubscriptionEndDate
		if end == nil || end.Before(from) || !end.Before(to) {
			continue
		}
		if a.HasDirectAccess || a.SubscriptionStatus == models.StatusActive || a.SubscriptionStatus == models.StatusTrialing {
			result = append(result, cloneAccount(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubscriptionEndDate.Before(*result[j].SubscriptionEndDate)
	})
	return result, nil
}
