// Package identity сопоставляет проверенную внешнюю личность с аккаунтом:
// поиск по внешнему id, слияние с заготовкой по email, создание.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

// AccountRepository методы хранилища, нужные для сопоставления личности.
type AccountRepository interface {
	GetAccountByExternalID(ctx context.Context, externalID string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateAccount(ctx context.Context, account models.Account) (*models.Account, error)
	LinkExternalID(ctx context.Context, id, externalID string, profile models.Profile) (*models.Account, error)
}

// Allowlist список email администраторов.
type Allowlist interface {
	Contains(email string) bool
}

// Resolver реализует сопоставление личности с аккаунтом.
type Resolver struct {
	repo     AccountRepository
	admins   Allowlist
	log      *slog.Logger
	validate *validator.Validate
}

// New создаёт Resolver.
func New(repo AccountRepository, admins Allowlist, log *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		admins:   admins,
		log:      log,
		validate: validator.New(),
	}
}

// NormalizeEmail приводит email к каноническому виду и проверяет формат.
func (r *Resolver) NormalizeEmail(email string) (string, error) {
	email = models.NormalizeEmail(email)
	if err := r.validate.Var(email, "required,email"); err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidEmail, err)
	}
	return email, nil
}

// RoleFor роль нового аккаунта по списку администраторов.
func (r *Resolver) RoleFor(email string) models.Role {
	if r.admins != nil && r.admins.Contains(email) {
		return models.RoleAdmin
	}
	return models.RoleUser
}

// Resolve возвращает аккаунт вызывающего. Если к аккаунту с тем же email ещё
// не привязан externalID, привязывает его и дополняет профиль. Если аккаунта
// нет, создаёт его; при гонке создания возвращает победителя.
func (r *Resolver) Resolve(ctx context.Context, id models.Identity) (*models.Account, error) {
	const op = "identity.Resolve"
	log := r.log.With(slog.String("op", op))

	if id.ExternalID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	email, err := r.NormalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}

	account, err := r.repo.GetAccountByExternalID(ctx, id.ExternalID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account, err = r.repo.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		return r.link(ctx, log, account, id)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := r.repo.CreateAccount(ctx, models.Account{
		ExternalIDs:        []string{id.ExternalID},
		Email:              email,
		Name:               id.Profile.Name,
		AvatarURL:          id.Profile.AvatarURL,
		Role:               r.RoleFor(email),
		SubscriptionStatus: models.StatusInactive,
	})
	if err == nil {
		log.Info("account created", sl.Audit(id.ExternalID, created.ID, nil, created)...)
		return created, nil
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account creation race, refetching by email", slog.String("email", email))
	account, err = r.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r.link(ctx, log, account, id)
}

func (r *Resolver) link(ctx context.Context, log *slog.Logger, account *models.Account, id models.Identity) (*models.Account, error) {
	if account.HasExternalID(id.ExternalID) && account.Name != "" && account.AvatarURL != "" {
		return account, nil
	}
	linked, err := r.repo.LinkExternalID(ctx, account.ID, id.ExternalID, id.Profile)
	if err != nil {
		return nil, fmt.Errorf("identity.link: %w", err)
	}
	log.Info("external identity linked", sl.Audit(id.ExternalID, account.ID, account.ExternalIDs, linked.ExternalIDs)...)
	return linked, nil
}

// FindOrCreate возвращает аккаунт с email или создаёт заготовку с полями
// template. При гонке создания возвращает победителя; created == false.
func (r *Resolver) FindOrCreate(ctx context.Context, email string, template models.Account) (account *models.Account, created bool, err error) {
	const op = "identity.FindOrCreate"

	email, err = r.NormalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	account, err = r.repo.GetAccountByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	template.Email = email
	template.ExternalIDs = []string{}
	if template.Role == "" {
		template.Role = r.RoleFor(email)
	}
	if template.SubscriptionStatus == "" {
		template.SubscriptionStatus = models.StatusInactive
	}
	account, err = r.repo.CreateAccount(ctx, template)
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	r.log.Info("placeholder creation race, refetching by email", slog.String("op", op), slog.String("email", email))
	account, err = r.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return account, false, nil
}
