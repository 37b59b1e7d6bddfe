package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage/memory"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetAccountByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *RepoMock) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *RepoMock) CreateAccount(ctx context.Context, account models.Account) (*models.Account, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *RepoMock) LinkExternalID(ctx context.Context, id, externalID string, profile models.Profile) (*models.Account, error) {
	args := m.Called(ctx, id, externalID, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestResolve_InvalidInput(t *testing.T) {
	r := New(memory.New(), config.AdminAllowlist{}, newNoopLogger())

	_, err := r.Resolve(context.Background(), models.Identity{Email: "a@example.com"})
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = r.Resolve(context.Background(), models.Identity{ExternalID: "ext", Email: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrInvalidEmail)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestResolve_CreateThenFindByExternalID(t *testing.T) {
	store := memory.New()
	r := New(store, config.AdminAllowlist{"admin@example.com"}, newNoopLogger())
	ctx := context.Background()

	id := models.Identity{ExternalID: "google|1", Email: " Alice@Example.com ", Profile: models.Profile{Name: "Alice"}}
	created, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, []string{"google|1"}, created.ExternalIDs)
	assert.Equal(t, models.StatusInactive, created.SubscriptionStatus)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.Equal(t, "Alice", created.Name)

	again, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestResolve_AdminRoleFromAllowlist(t *testing.T) {
	r := New(memory.New(), config.AdminAllowlist{"admin@example.com"}, newNoopLogger())

	a, err := r.Resolve(context.Background(), models.Identity{ExternalID: "ext", Email: "ADMIN@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, a.Role)
}

func TestResolve_MergesPlaceholderByEmail(t *testing.T) {
	store := memory.New()
	r := New(store, config.AdminAllowlist{}, newNoopLogger())
	ctx := context.Background()

	placeholder, err := store.CreateAccount(ctx, models.Account{Email: "new@x.com", HasDirectAccess: true})
	require.NoError(t, err)
	require.True(t, placeholder.IsPlaceholder())

	merged, err := r.Resolve(ctx, models.Identity{
		ExternalID: "github|9",
		Email:      "New@X.com",
		Profile:    models.Profile{Name: "New User", AvatarURL: "https://img/new.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, merged.ID)
	assert.Equal(t, []string{"github|9"}, merged.ExternalIDs)
	assert.Equal(t, "New User", merged.Name)
	assert.Equal(t, "https://img/new.png", merged.AvatarURL)
	assert.True(t, merged.HasDirectAccess)

	second, err := r.Resolve(ctx, models.Identity{ExternalID: "google|3", Email: "new@x.com"})
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, second.ID)
	assert.Equal(t, []string{"github|9", "google|3"}, second.ExternalIDs)
}

func TestResolve_CreationRaceReturnsWinner(t *testing.T) {
	repo := new(RepoMock)
	r := New(repo, config.AdminAllowlist{}, newNoopLogger())
	ctx := context.Background()

	winner := &models.Account{ID: "winner", Email: "race@example.com", ExternalIDs: []string{"ext-other"}}
	linked := &models.Account{ID: "winner", Email: "race@example.com", ExternalIDs: []string{"ext-other", "ext"}}

	repo.On("GetAccountByExternalID", ctx, "ext").Return(nil, storage.ErrNotFound)
	repo.On("GetAccountByEmail", ctx, "race@example.com").Return(nil, storage.ErrNotFound).Once()
	repo.On("CreateAccount", ctx, mock.AnythingOfType("models.Account")).Return(nil, fmt.Errorf("insert: %w", storage.ErrDuplicate))
	repo.On("GetAccountByEmail", ctx, "race@example.com").Return(winner, nil).Once()
	repo.On("LinkExternalID", ctx, "winner", "ext", models.Profile{}).Return(linked, nil)

	got, err := r.Resolve(ctx, models.Identity{ExternalID: "ext", Email: "race@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "winner", got.ID)
	repo.AssertExpectations(t)
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	repo := new(RepoMock)
	r := New(repo, nil, newNoopLogger())
	ctx := context.Background()

	repo.On("GetAccountByExternalID", ctx, "ext").Return(nil, errors.New("connection reset"))

	_, err := r.Resolve(ctx, models.Identity{ExternalID: "ext", Email: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity.Resolve")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestResolve_ConcurrentSameEmailYieldsOneAccount(t *testing.T) {
	store := memory.New()
	r := New(store, nil, newNoopLogger())
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Resolve(ctx, models.Identity{ExternalID: fmt.Sprintf("ext-%d", i), Email: "tabs@example.com"})
			if assert.NoError(t, err) {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	a, err := store.GetAccountByEmail(ctx, "tabs@example.com")
	require.NoError(t, err)
	assert.Len(t, a.ExternalIDs, n)
}

func TestFindOrCreate(t *testing.T) {
	store := memory.New()
	r := New(store, config.AdminAllowlist{"boss@example.com"}, newNoopLogger())
	ctx := context.Background()

	a, created, err := r.FindOrCreate(ctx, "Boss@Example.com", models.Account{HasDirectAccess: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, a.IsPlaceholder())
	assert.Equal(t, models.RoleAdmin, a.Role)
	assert.True(t, a.HasDirectAccess)

	b, created, err := r.FindOrCreate(ctx, "boss@example.com", models.Account{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, b.ID)

	_, _, err = r.FindOrCreate(ctx, "", models.Account{})
	assert.ErrorIs(t, err, apperr.ErrInvalidEmail)
}
