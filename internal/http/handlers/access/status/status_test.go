package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/access"
	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/entitlement"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Check(ctx context.Context, id models.Identity) (*entitlement.Status, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*entitlement.Status), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var caller = models.Identity{ExternalID: "google|1", Email: "u@example.com"}

func TestStatusHandler(t *testing.T) {
	tier := models.TierPro
	tests := []struct {
		name           string
		identity       bool
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no identity",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"code":"not_authenticated"`,
		},
		{
			name:     "allowed",
			identity: true,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, caller).Return(&entitlement.Status{
					Account:  &models.Account{ID: "a1", SubscriptionStatus: models.StatusActive, SubscriptionTier: &tier, HasDirectAccess: true},
					Decision: access.Decision{Allowed: true, Reason: access.ReasonDirectGrant},
					Features: map[access.Feature]bool{access.FeatureAITafsir: true},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":true`,
		},
		{
			name:     "service error",
			identity: true,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, caller).Return(nil, apperr.ErrInvalidEmail)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"invalid_email"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/access", nil)
			if tt.identity {
				req = req.WithContext(middlewarectx.WithIdentity(req.Context(), caller))
			}
			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}

func TestStatusHandler_Body(t *testing.T) {
	svc := new(MockService)
	svc.On("Check", mock.Anything, caller).Return(&entitlement.Status{
		Account:    &models.Account{ID: "a1", SubscriptionStatus: models.StatusCanceled, HasDirectAccess: false},
		Decision:   access.Decision{Allowed: false, Reason: access.ReasonNoEntitlement},
		Features:   map[access.Feature]bool{access.FeatureAITafsir: false, access.FeatureFullCatalog: false},
		Reconciled: false,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/access", nil)
	req = req.WithContext(middlewarectx.WithIdentity(req.Context(), caller))
	rec := httptest.NewRecorder()
	New(newNoopLogger(), svc).ServeHTTP(rec, req)

	var body struct {
		Status string   `json:"status"`
		Data   Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.False(t, body.Data.Allowed)
	assert.Equal(t, access.ReasonNoEntitlement, body.Data.Reason)
	assert.Equal(t, "canceled", body.Data.Status)
	assert.Len(t, body.Data.Features, 2)
}
