package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

const accountColumns = `id, external_ids, email, name, avatar_url, role, subscription_status,
	subscription_plan, subscription_tier, subscription_end_date, trial_ends_at,
	has_direct_access, payment_customer_ref, payment_subscription_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                    models.Account
		role, status         string
		plan, tier           sql.NullString
		customer, subRef     sql.NullString
		endDate, trialEndsAt sql.NullTime
	)
	if err := row.Scan(&a.ID, textArray(&a.ExternalIDs), &a.Email, &a.Name, &a.AvatarURL, &role, &status,
		&plan, &tier, &endDate, &trialEndsAt,
		&a.HasDirectAccess, &customer, &subRef, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.SubscriptionStatus = models.SubscriptionStatus(status)
	a.SubscriptionPlan = nullString(plan)
	a.SubscriptionTier = nullString(tier)
	a.PaymentCustomerRef = nullString(customer)
	a.PaymentSubscriptionRef = nullString(subRef)
	if endDate.Valid {
		a.SubscriptionEndDate = &endDate.Time
	}
	if trialEndsAt.Valid {
		a.TrialEndsAt = &trialEndsAt.Time
	}
	if a.ExternalIDs == nil {
		a.ExternalIDs = []string{}
	}
	return &a, nil
}

// CreateAccount вставляет аккаунт. Если аккаунт с таким email (без учёта
// регистра) уже есть, возвращает storage.ErrDuplicate.
func (s *Storage) CreateAccount(ctx context.Context, account models.Account) (*models.Account, error) {
	const op = "storage.CreateAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	externalIDs := account.ExternalIDs
	if externalIDs == nil {
		externalIDs = []string{}
	}
	status := account.SubscriptionStatus
	if status == "" {
		status = models.StatusInactive
	}
	role := account.Role
	if role == "" {
		role = models.RoleUser
	}

	query := `INSERT INTO accounts (external_ids, email, name, avatar_url, role, subscription_status,
			      subscription_plan, subscription_tier, subscription_end_date, trial_ends_at,
			      has_direct_access, payment_customer_ref, payment_subscription_ref)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  RETURNING ` + accountColumns
	row := s.DB.QueryRowContext(ctx, query,
		externalIDs, models.NormalizeEmail(account.Email), account.Name, account.AvatarURL,
		string(role), string(status), nullable(account.SubscriptionPlan), nullable(account.SubscriptionTier),
		nullable(account.SubscriptionEndDate), nullable(account.TrialEndsAt), account.HasDirectAccess,
		nullable(account.PaymentCustomerRef), nullable(account.PaymentSubscriptionRef))
	created, err := scanAccount(row)
	if err != nil {
		return nil, mapError(op, err)
	}
	return created, nil
}

// GetAccountByID возвращает аккаунт по id.
func (s *Storage) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	const op = "storage.GetAccountByID"
	return s.getAccount(ctx, op, `WHERE id = $1`, id)
}

// GetAccountByExternalID ищет аккаунт, к которому привязана внешняя личность.
func (s *Storage) GetAccountByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	const op = "storage.GetAccountByExternalID"
	return s.getAccount(ctx, op, `WHERE external_ids @> ARRAY[$1]::text[]`, externalID)
}

// GetAccountByEmail ищет аккаунт по email без учёта регистра.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccountByEmail"
	return s.getAccount(ctx, op, `WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

// GetAccountByCustomerRef ищет аккаунт по идентификатору клиента в платёжной системе.
func (s *Storage) GetAccountByCustomerRef(ctx context.Context, customerRef string) (*models.Account, error) {
	const op = "storage.GetAccountByCustomerRef"
	return s.getAccount(ctx, op, `WHERE payment_customer_ref = $1`, customerRef)
}

func (s *Storage) getAccount(ctx context.Context, op, where string, arg any) (*models.Account, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + ` FROM accounts ` + where + ` ORDER BY created_at LIMIT 1`
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapError(op, err)
	}
	return a, nil
}

// LinkExternalID привязывает внешнюю личность к аккаунту (если ещё не
// привязана) и заполняет пустые поля профиля. Выполняется одним UPDATE.
func (s *Storage) LinkExternalID(ctx context.Context, id, externalID string, profile models.Profile) (*models.Account, error) {
	const op = "storage.LinkExternalID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET external_ids = CASE WHEN external_ids @> ARRAY[$2]::text[] THEN external_ids
			                          ELSE array_append(external_ids, $2::text) END,
			      name = CASE WHEN name = '' THEN $3 ELSE name END,
			      avatar_url = CASE WHEN avatar_url = '' THEN $4 ELSE avatar_url END,
			      updated_at = NOW()
			  WHERE id = $1
			  RETURNING ` + accountColumns
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, id, externalID, profile.Name, profile.AvatarURL))
	if err != nil {
		return nil, mapError(op, err)
	}
	return a, nil
}

// UpdateEntitlement атомарно применяет патч полей доступа к аккаунту с данным id.
func (s *Storage) UpdateEntitlement(ctx context.Context, id string, patch models.EntitlementPatch) (*models.Account, error) {
	const op = "storage.UpdateEntitlement"
	return s.updateEntitlement(ctx, op, "id", id, patch)
}

// UpdateEntitlementByCustomerRef атомарно применяет патч к аккаунту, связанному
// с клиентом платёжной системы.
func (s *Storage) UpdateEntitlementByCustomerRef(ctx context.Context, customerRef string, patch models.EntitlementPatch) (*models.Account, error) {
	const op = "storage.UpdateEntitlementByCustomerRef"
	return s.updateEntitlement(ctx, op, "payment_customer_ref", customerRef, patch)
}

func (s *Storage) updateEntitlement(ctx context.Context, op, keyColumn, key string, patch models.EntitlementPatch) (*models.Account, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sets, args := patchAssignments(patch)
	sets = append(sets, "updated_at = NOW()")
	args = append(args, key)
	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE %s = $%d RETURNING %s`,
		strings.Join(sets, ", "), keyColumn, len(args), accountColumns)

	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return a, nil
}

const lifetimeGrantCondition = "has_direct_access AND subscription_plan = 'lifetime'"

// patchAssignments строит список "колонка = $n" только для заданных полей патча.
func patchAssignments(p models.EntitlementPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	// grantField проверяет прежнее значение строки в том же UPDATE.
	grantField := add
	if p.KeepLifetimeGrant {
		grantField = func(column string, value any) {
			args = append(args, value)
			sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s THEN %s ELSE $%d END",
				column, lifetimeGrantCondition, column, len(args)))
		}
	}

	if p.Status.IsSet() && p.Status.Value() != nil {
		add("subscription_status", string(*p.Status.Value()))
	}
	if p.Plan.IsSet() {
		grantField("subscription_plan", nullable(p.Plan.Value()))
	}
	if p.Tier.IsSet() {
		grantField("subscription_tier", nullable(p.Tier.Value()))
	}
	if p.EndDate.IsSet() {
		grantField("subscription_end_date", nullable(p.EndDate.Value()))
	}
	if p.TrialEndsAt.IsSet() {
		add("trial_ends_at", nullable(p.TrialEndsAt.Value()))
	}
	if p.HasDirectAccess.IsSet() && p.HasDirectAccess.Value() != nil {
		add("has_direct_access", *p.HasDirectAccess.Value())
	}
	if p.PaymentCustomerRef.IsSet() {
		add("payment_customer_ref", nullable(p.PaymentCustomerRef.Value()))
	}
	if p.PaymentSubscriptionRef.IsSet() {
		add("payment_subscription_ref", nullable(p.PaymentSubscriptionRef.Value()))
	}
	return sets, args
}

// ListAccountsExpiringBetween возвращает аккаунты с доступом, срок которого
// заканчивается в интервале [from, to).
func (s *Storage) ListAccountsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	const op = "storage.ListAccountsExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE subscription_end_date >= $1 AND subscription_end_date < $2
			    AND (has_direct_access OR subscription_status IN ('active', 'trialing'))
			  ORDER BY subscription_end_date`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// nullable превращает nil-указатель в NULL, иначе разыменовывает значение.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
