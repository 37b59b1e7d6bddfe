// Package entitlement проверка доступа вызывающего на входе в закрытую часть
// приложения. Только здесь допускается обращение к платёжной системе, если
// решение отрицательное.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/quran-entitlements/internal/access"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/metrics"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

// Resolver сопоставление вызывающего с аккаунтом.
type Resolver interface {
	Resolve(ctx context.Context, id models.Identity) (*models.Account, error)
}

// Accounts чтение аккаунта по id.
type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// Reconciler запрос к платёжной системе при отставании вебхуков.
type Reconciler interface {
	Reconcile(ctx context.Context, account *models.Account) (*models.Account, bool, error)
}

// Status ответ на проверку доступа.
type Status struct {
	Account    *models.Account         `json:"account"`
	Decision   access.Decision         `json:"decision"`
	Features   map[access.Feature]bool `json:"features"`
	Reconciled bool                    `json:"reconciled"`
}

// Service проверка доступа.
type Service struct {
	resolver   Resolver
	accounts   Accounts
	reconciler Reconciler
	log        *slog.Logger
	now        func() time.Time
}

// New создаёт Service. reconciler может быть nil.
func New(resolver Resolver, accounts Accounts, reconciler Reconciler, log *slog.Logger) *Service {
	return &Service{
		resolver:   resolver,
		accounts:   accounts,
		reconciler: reconciler,
		log:        log,
		now:        time.Now,
	}
}

// Check возвращает решение о доступе для вызывающего. При отрицательном
// решении один раз сверяется с платёжной системой; её недоступность не
// является ошибкой, решение остаётся отрицательным.
func (s *Service) Check(ctx context.Context, id models.Identity) (*Status, error) {
	const op = "entitlement.Check"
	log := s.log.With(slog.String("op", op))

	account, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	decision := access.Evaluate(account, now)
	reconciled := false
	if !decision.Allowed && s.reconciler != nil {
		updated, found, err := s.reconciler.Reconcile(ctx, account)
		switch {
		case err != nil:
			log.Warn("processor fallback failed, keeping decision", slog.String("account_id", account.ID), sl.Err(err))
		case found:
			account = updated
			reconciled = true
			decision = access.Evaluate(account, now)
		}
	}

	metrics.AccessDecisions.WithLabelValues(string(decision.Reason), strconv.FormatBool(decision.Allowed)).Inc()
	return &Status{
		Account:    account,
		Decision:   decision,
		Features:   access.Features(account, now),
		Reconciled: reconciled,
	}, nil
}

// Inspect решение о доступе для аккаунта по id, для поддержки. Платёжная
// система не опрашивается.
func (s *Service) Inspect(ctx context.Context, accountID string) (*Status, error) {
	const op = "entitlement.Inspect"
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, apperr.ErrAccountNotFound
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	return &Status{
		Account:  account,
		Decision: access.Evaluate(account, now),
		Features: access.Features(account, now),
	}, nil
}
