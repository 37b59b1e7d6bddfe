package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

func cloneVoucher(v *models.Voucher) *models.Voucher {
	c := *v
	c.Description = clonePtr(v.Description)
	return &c
}

// CreateVoucher добавляет ваучер; код уникален без учёта регистра.
func (s *Storage) CreateVoucher(ctx context.Context, voucher models.Voucher) (*models.Voucher, error) {
	const op = "memory.CreateVoucher"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := models.CanonicalVoucherCode(voucher.Code)
	if _, ok := s.vouchers[code]; ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	created := cloneVoucher(&voucher)
	created.ID = uuid.NewString()
	created.Code = code
	created.RedemptionCount = 0
	created.CreatedAt = s.now()
	s.vouchers[code] = created
	return cloneVoucher(created), nil
}

// GetVoucherByCode возвращает ваучер по коду.
func (s *Storage) GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	const op = "memory.GetVoucherByCode"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[models.CanonicalVoucherCode(code)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return cloneVoucher(v), nil
}

func (s *Storage) voucherByIDLocked(id string) *models.Voucher {
	for _, v := range s.vouchers {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// IncrementRedemptionCount увеличивает счётчик, если лимит не исчерпан.
func (s *Storage) IncrementRedemptionCount(ctx context.Context, voucherID string) (bool, error) {
	const op = "memory.IncrementRedemptionCount"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.voucherByIDLocked(voucherID)
	if v == nil || v.RedemptionCount >= v.MaxRedemptions {
		return false, nil
	}
	v.RedemptionCount++
	return true, nil
}

// DecrementRedemptionCount возвращает занятое погашение.
func (s *Storage) DecrementRedemptionCount(ctx context.Context, voucherID string) error {
	const op = "memory.DecrementRedemptionCount"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v := s.voucherByIDLocked(voucherID); v != nil && v.RedemptionCount > 0 {
		v.RedemptionCount--
	}
	return nil
}

// GetRedemption возвращает запись о погашении.
func (s *Storage) GetRedemption(ctx context.Context, accountID, voucherID string) (*models.VoucherRedemption, error) {
	const op = "memory.GetRedemption"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.redemptions[redemptionKey{accountID, voucherID}]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	c := *r
	return &c, nil
}

// CreateRedemption сохраняет погашение; пара аккаунт+ваучер уникальна.
func (s *Storage) CreateRedemption(ctx context.Context, redemption models.VoucherRedemption) (*models.VoucherRedemption, error) {
	const op = "memory.CreateRedemption"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := redemptionKey{redemption.AccountID, redemption.VoucherID}
	if _, ok := s.redemptions[key]; ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	r := redemption
	r.ID = uuid.NewString()
	s.redemptions[key] = &r
	c := r
	return &c, nil
}

// CreateAdminGrantLog добавляет запись журнала.
func (s *Storage) CreateAdminGrantLog(ctx context.Context, entry models.AdminGrantLog) (string, error) {
	const op = "memory.CreateAdminGrantLog"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry
	e.ID = uuid.NewString()
	s.grantLogs = append(s.grantLogs, &e)
	return e.ID, nil
}

// ListAdminGrantLogs возвращает записи журнала, новые первыми.
func (s *Storage) ListAdminGrantLogs(ctx context.Context, limit, offset int) ([]*models.AdminGrantLog, error) {
	const op = "memory.ListAdminGrantLogs"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]*models.AdminGrantLog, 0, len(s.grantLogs))
	for _, l := range s.grantLogs {
		c := *l
		logs = append(logs, &c)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	if offset >= len(logs) {
		return []*models.AdminGrantLog{}, nil
	}
	logs = logs[offset:]
	if limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return logs, nil
}
