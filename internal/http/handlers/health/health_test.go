package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		db     Pinger
		status int
		body   string
	}{
		{name: "no db", status: http.StatusOK, body: `"status":"ok"`},
		{name: "db up", db: pinger{}, status: http.StatusOK, body: `"status":"ok"`},
		{name: "db down", db: pinger{err: errors.New("refused")}, status: http.StatusServiceUnavailable, body: "database unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(logger, tt.db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}
