package create

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/voucher"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, actor string, isAdmin bool, in voucher.CreateInput) (*models.Voucher, error) {
	args := m.Called(ctx, actor, isAdmin, in)
	if res := args.Get(0); res != nil {
		return res.(*models.Voucher), args.Error(1)
	}
	return nil, args.Error(1)
}

const validBody = `{"code":"eid2026","tier":"pro","duration_months":1,"max_redemptions":50,"expires_at":"2026-12-31T00:00:00Z"}`

func TestCreateHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin := &models.Account{ID: "adm", Email: "admin@example.com", Role: models.RoleAdmin}

	tests := []struct {
		name           string
		admin          bool
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no admin in context",
			body:           validBody,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `"code":"forbidden"`,
		},
		{
			name:           "validation failed",
			admin:          true,
			body:           `{"code":"X","tier":"gold","duration_months":0,"max_redemptions":1,"expires_at":"2026-12-31T00:00:00Z"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "must be one of",
		},
		{
			name:  "created",
			admin: true,
			body:  validBody,
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "admin@example.com", true, mock.AnythingOfType("voucher.CreateInput")).
					Return(&models.Voucher{ID: "v1", Code: "EID2026", Tier: "pro", DurationMonths: 1, MaxRedemptions: 50, IsActive: true}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"code":"EID2026"`,
		},
		{
			name:  "duplicate code",
			admin: true,
			body:  validBody,
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "admin@example.com", true, mock.AnythingOfType("voucher.CreateInput")).
					Return(nil, apperr.ErrVoucherExists)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"code":"voucher_exists"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/vouchers", strings.NewReader(tt.body))
			if tt.admin {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.AccountKey, admin))
			}
			rec := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
