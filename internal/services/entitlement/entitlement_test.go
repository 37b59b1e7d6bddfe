package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/access"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
)

type ResolverMock struct{ mock.Mock }

func (m *ResolverMock) Resolve(ctx context.Context, id models.Identity) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

type AccountsMock struct{ mock.Mock }

func (m *AccountsMock) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

type ReconcilerMock struct{ mock.Mock }

func (m *ReconcilerMock) Reconcile(ctx context.Context, account *models.Account) (*models.Account, bool, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Account), args.Bool(1), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var (
	now    = time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	caller = models.Identity{ExternalID: "google|1", Email: "u@example.com"}
)

func newService(resolver Resolver, reconciler Reconciler) *Service {
	s := New(resolver, nil, reconciler, newNoopLogger())
	s.now = func() time.Time { return now }
	return s
}

func str(s string) *string { return &s }

func TestCheck_AllowedSkipsProcessor(t *testing.T) {
	end := now.AddDate(0, 1, 0)
	account := &models.Account{ID: "a1", SubscriptionStatus: models.StatusActive, SubscriptionTier: str(models.TierPro), SubscriptionEndDate: &end}

	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, caller).Return(account, nil)
	reconciler := new(ReconcilerMock)

	st, err := newService(resolver, reconciler).Check(context.Background(), caller)
	require.NoError(t, err)
	assert.True(t, st.Decision.Allowed)
	assert.Equal(t, access.ReasonSubscriptionActive, st.Decision.Reason)
	assert.True(t, st.Features[access.FeatureAITafsir])
	assert.False(t, st.Reconciled)
	reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestCheck_FallbackGrantsAccess(t *testing.T) {
	account := &models.Account{ID: "a1", Email: "u@example.com", SubscriptionStatus: models.StatusInactive}
	end := now.AddDate(0, 1, 0)
	paid := &models.Account{ID: "a1", Email: "u@example.com", SubscriptionStatus: models.StatusActive, SubscriptionTier: str(models.TierBasic), SubscriptionEndDate: &end}

	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, caller).Return(account, nil)
	reconciler := new(ReconcilerMock)
	reconciler.On("Reconcile", mock.Anything, account).Return(paid, true, nil).Once()

	st, err := newService(resolver, reconciler).Check(context.Background(), caller)
	require.NoError(t, err)
	assert.True(t, st.Decision.Allowed)
	assert.True(t, st.Reconciled)
	assert.True(t, st.Features[access.FeatureFullCatalog])
	assert.False(t, st.Features[access.FeatureAITafsir])
	reconciler.AssertExpectations(t)
}

func TestCheck_FallbackFailureDegrades(t *testing.T) {
	account := &models.Account{ID: "a1", SubscriptionStatus: models.StatusCanceled}

	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, caller).Return(account, nil)
	reconciler := new(ReconcilerMock)
	reconciler.On("Reconcile", mock.Anything, account).Return(account, false, apperr.ErrProcessorUnavailable)

	st, err := newService(resolver, reconciler).Check(context.Background(), caller)
	require.NoError(t, err)
	assert.False(t, st.Decision.Allowed)
	assert.Equal(t, access.ReasonNoEntitlement, st.Decision.Reason)
	assert.False(t, st.Reconciled)
}

func TestCheck_ResolveError(t *testing.T) {
	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return(nil, apperr.ErrNotAuthenticated)

	_, err := newService(resolver, nil).Check(context.Background(), models.Identity{})
	assert.True(t, errors.Is(err, apperr.ErrNotAuthenticated))
}

func TestInspect(t *testing.T) {
	const id = "3f1c2a4e-8b7d-4c1a-9e2f-6a5b4c3d2e1f"
	past := now.AddDate(0, -1, 0)
	tests := []struct {
		name      string
		id        string
		account   *models.Account
		repoErr   error
		wantErr   error
		wantAllow bool
		wantWhy   access.Reason
	}{
		{
			name:      "lifetime grant",
			id:        id,
			account:   &models.Account{ID: id, HasDirectAccess: true, SubscriptionPlan: str(models.PlanLifetime), SubscriptionTier: str(models.TierPro)},
			wantAllow: true,
			wantWhy:   access.ReasonDirectGrant,
		},
		{
			name:    "expired subscription",
			id:      id,
			account: &models.Account{ID: id, SubscriptionStatus: models.StatusActive, SubscriptionEndDate: &past},
			wantWhy: access.ReasonSubscriptionExpired,
		},
		{name: "unknown id", id: id, repoErr: storage.ErrNotFound, wantErr: apperr.ErrAccountNotFound},
		{name: "malformed id", id: "a1", wantErr: apperr.ErrAccountNotFound},
		{name: "storage down", id: id, repoErr: errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(AccountsMock)
			reconciler := new(ReconcilerMock)
			accounts.On("GetAccountByID", mock.Anything, id).Return(tt.account, tt.repoErr)

			s := New(new(ResolverMock), accounts, reconciler, newNoopLogger())
			s.now = func() time.Time { return now }

			st, err := s.Inspect(context.Background(), tt.id)
			reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
			if tt.id != id {
				accounts.AssertNotCalled(t, "GetAccountByID", mock.Anything, mock.Anything)
			}
			if tt.wantErr != nil || tt.repoErr != nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.ErrorIs(t, err, tt.repoErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllow, st.Decision.Allowed)
			assert.Equal(t, tt.wantWhy, st.Decision.Reason)
			assert.False(t, st.Reconciled)
		})
	}
}
