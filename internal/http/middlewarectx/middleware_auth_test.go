package middlewarectx_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/apperr"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	maker := jwt.NewJWTMaker("secret", "auth.example.com", time.Hour)
	other := jwt.NewJWTMaker("other-secret", "auth.example.com", time.Hour)
	identity := models.Identity{ExternalID: "google|1", Email: "User@Example.com", Profile: models.Profile{Name: "User"}}

	valid, err := maker.GenerateToken(identity)
	require.NoError(t, err)
	forged, err := other.GenerateToken(identity)
	require.NoError(t, err)

	var got models.Identity
	handlerCalled := false
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		got, _ = middlewarectx.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := middlewarectx.JWTMiddleware(maker, newNoopLogger())(nextHandler)

	tests := []struct {
		name           string
		authHeader     string
		wantStatusCode int
		wantCalled     bool
	}{
		{name: "missing Authorization header", wantStatusCode: http.StatusUnauthorized},
		{name: "invalid Authorization header prefix", authHeader: "Basic sometoken", wantStatusCode: http.StatusUnauthorized},
		{name: "garbage token", authHeader: "Bearer token", wantStatusCode: http.StatusUnauthorized},
		{name: "token signed with another key", authHeader: "Bearer " + forged, wantStatusCode: http.StatusUnauthorized},
		{name: "valid token", authHeader: "Bearer " + valid, wantStatusCode: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			mw.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
		})
	}

	assert.Equal(t, "google|1", got.ExternalID)
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, "User", got.Profile.Name)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve(ctx context.Context, id models.Identity) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

type roleChecker struct{}

func (roleChecker) IsAdmin(a *models.Account) bool { return a.Role == models.RoleAdmin }

func TestAdminMiddleware(t *testing.T) {
	admin := models.Identity{ExternalID: "google|admin", Email: "admin@example.com"}
	user := models.Identity{ExternalID: "google|user", Email: "user@example.com"}

	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, admin).Return(&models.Account{ID: "a", Email: admin.Email, Role: models.RoleAdmin}, nil)
	resolver.On("Resolve", mock.Anything, user).Return(&models.Account{ID: "u", Email: user.Email, Role: models.RoleUser}, nil)

	var seen *models.Account
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middlewarectx.AccountFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := middlewarectx.AdminMiddleware(resolver, roleChecker{}, newNoopLogger())(next)

	tests := []struct {
		name     string
		identity *models.Identity
		want     int
	}{
		{name: "no identity", want: http.StatusUnauthorized},
		{name: "user", identity: &user, want: http.StatusForbidden},
		{name: "admin", identity: &admin, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.identity != nil {
				req = req.WithContext(middlewarectx.WithIdentity(req.Context(), *tt.identity))
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "a", seen.ID)
}

func TestAdminMiddleware_ResolveError(t *testing.T) {
	resolver := new(ResolverMock)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return(nil, apperr.ErrInvalidEmail)

	mw := middlewarectx.AdminMiddleware(resolver, roleChecker{}, newNoopLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req = req.WithContext(middlewarectx.WithIdentity(req.Context(), models.Identity{ExternalID: "x", Email: "bad"}))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
