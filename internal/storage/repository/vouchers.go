package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

const voucherColumns = `id, code, tier, duration_months, max_redemptions, redemption_count,
	expires_at, is_active, description, created_at`

func scanVoucher(row rowScanner) (*models.Voucher, error) {
	var (
		v           models.Voucher
		description sql.NullString
	)
	if err := row.Scan(&v.ID, &v.Code, &v.Tier, &v.DurationMonths, &v.MaxRedemptions, &v.RedemptionCount,
		&v.ExpiresAt, &v.IsActive, &description, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Description = nullString(description)
	return &v, nil
}

// CreateVoucher сохраняет ваучер. Код уникален без учёта регистра.
func (s *Storage) CreateVoucher(ctx context.Context, voucher models.Voucher) (*models.Voucher, error) {
	const op = "storage.CreateVoucher"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO vouchers (code, tier, duration_months, max_redemptions, expires_at, is_active, description)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING ` + voucherColumns
	v, err := scanVoucher(s.DB.QueryRowContext(ctx, query,
		models.CanonicalVoucherCode(voucher.Code), voucher.Tier, voucher.DurationMonths,
		voucher.MaxRedemptions, voucher.ExpiresAt, voucher.IsActive, nullable(voucher.Description)))
	if err != nil {
		return nil, mapError(op, err)
	}
	return v, nil
}

// GetVoucherByCode ищет ваучер по каноническому коду.
func (s *Storage) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	const op = "storage.GetVoucherByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE upper(code) = upper($1)`
	v, err := scanVoucher(s.DB.QueryRowContext(ctx, query, models.CanonicalVoucherCode(code)))
	if err != nil {
		return nil, mapError(op, err)
	}
	return v, nil
}

// IncrementRedemptionCount атомарно увеличивает счётчик погашений, только
// если лимит ещё не достигнут. Возвращает false, если лимит исчерпан.
func (s *Storage) IncrementRedemptionCount(ctx context.Context, voucherID string) (bool, error) {
	const op = "storage.IncrementRedemptionCount"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE vouchers
			  SET redemption_count = redemption_count + 1
			  WHERE id = $1 AND redemption_count < max_redemptions
			  RETURNING redemption_count`
	var count int
	err := s.DB.QueryRowContext(ctx, query, voucherID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// DecrementRedemptionCount возвращает погашение, занятое неудавшейся попыткой.
func (s *Storage) DecrementRedemptionCount(ctx context.Context, voucherID string) error {
	const op = "storage.DecrementRedemptionCount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE vouchers
			  SET redemption_count = redemption_count - 1
			  WHERE id = $1 AND redemption_count > 0`
	if _, err := s.DB.ExecContext(ctx, query, voucherID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRedemption возвращает запись о погашении ваучера аккаунтом.
func (s *Storage) GetRedemption(ctx context.Context, accountID, voucherID string) (*models.VoucherRedemption, error) {
	const op = "storage.GetRedemption"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_id, voucher_id, granted_tier, granted_duration, redeemed_at
			  FROM voucher_redemptions
			  WHERE account_id = $1 AND voucher_id = $2`
	var r models.VoucherRedemption
	err := s.DB.QueryRowContext(ctx, query, accountID, voucherID).Scan(
		&r.ID, &r.AccountID, &r.VoucherID, &r.GrantedTier, &r.GrantedDuration, &r.RedeemedAt)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &r, nil
}

// CreateRedemption сохраняет запись о погашении. Повторная пара
// (account_id, voucher_id) возвращает storage.ErrDuplicate.
func (s *Storage) CreateRedemption(ctx context.Context, redemption models.VoucherRedemption) (*models.VoucherRedemption, error) {
	const op = "storage.CreateRedemption"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO voucher_redemptions (account_id, voucher_id, granted_tier, granted_duration, redeemed_at)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	r := redemption
	err := s.DB.QueryRowContext(ctx, query,
		r.AccountID, r.VoucherID, r.GrantedTier, r.GrantedDuration, r.RedeemedAt).Scan(&r.ID)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &r, nil
}
