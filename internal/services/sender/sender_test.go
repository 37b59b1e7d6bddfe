package sender

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/smtp"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/rabbitmq"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(msg smtp.Message) error {
	return m.Called(msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func to(addr string, kind models.NotificationKind) any {
	return mock.MatchedBy(func(msg smtp.Message) bool {
		return msg.To == addr && msg.Kind == kind
	})
}

func TestSenderService_Send(t *testing.T) {
	tests := []struct {
		name              string
		kind              models.NotificationKind
		body              []byte
		setupMocks        func(*MockMailer)
		expectedError     bool
		wantUnprocessable bool
		errorMessage      string
	}{
		{
			name: "access granted",
			kind: models.NotifyAccessGranted,
			body: []byte(`{"kind":"access_granted","account_id":"a1","email":"new@x.com","context":{"duration":"3_months"}}`),
			setupMocks: func(m *MockMailer) {
				m.On("Send", to("new@x.com", models.NotifyAccessGranted)).Return(nil).Once()
			},
		},
		{
			name: "expiring",
			kind: models.NotifyAccessExpiring,
			body: []byte(`{"kind":"access_expiring","account_id":"a1","email":"late@example.com","name":"Amina","context":{"end_date":"2026-05-01"}}`),
			setupMocks: func(m *MockMailer) {
				m.On("Send", to("late@example.com", models.NotifyAccessExpiring)).Return(nil).Once()
			},
		},
		{
			name:              "invalid JSON",
			kind:              models.NotifyWelcome,
			body:              []byte(`invalid json`),
			setupMocks:        func(_ *MockMailer) {},
			expectedError:     true,
			wantUnprocessable: true,
			errorMessage:      "error unmarshalling message",
		},
		{
			name:              "unknown kind",
			kind:              "newsletter",
			body:              []byte(`{"email":"a@example.com"}`),
			setupMocks:        func(_ *MockMailer) {},
			expectedError:     true,
			wantUnprocessable: true,
			errorMessage:      "unknown notification kind",
		},
		{
			name: "no recipient",
			kind: models.NotifyWelcome,
			body: []byte(`{"kind":"welcome"}`),
			setupMocks: func(m *MockMailer) {
				m.On("Send", mock.Anything).Return(fmt.Errorf("smtp.Send: %w", smtp.ErrNoRecipient)).Once()
			},
			expectedError:     true,
			wantUnprocessable: true,
			errorMessage:      "without recipient",
		},
		{
			name: "mailbox rejected",
			kind: models.NotifyWelcome,
			body: []byte(`{"kind":"welcome","email":"gone@example.com"}`),
			setupMocks: func(m *MockMailer) {
				m.On("Send", to("gone@example.com", models.NotifyWelcome)).
					Return(fmt.Errorf("%w: %w", smtp.ErrRejected, &textproto.Error{Code: 550, Msg: "no such user"})).Once()
			},
			expectedError:     true,
			wantUnprocessable: true,
			errorMessage:      "no such user",
		},
		{
			name: "SMTP connection error",
			kind: models.NotifyWelcome,
			body: []byte(`{"kind":"welcome","email":"test@example.com"}`),
			setupMocks: func(m *MockMailer) {
				m.On("Send", to("test@example.com", models.NotifyWelcome)).Return(errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := new(MockMailer)
			service := NewSenderService(mailer, newNoopLogger())

			tt.setupMocks(mailer)

			err := service.Send(tt.kind, tt.body)

			if tt.expectedError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
				assert.Equal(t, tt.wantUnprocessable, errors.Is(err, rabbitmq.ErrUnprocessable))
			} else {
				assert.NoError(t, err)
			}

			mailer.AssertExpectations(t)
		})
	}
}

func TestSenderService_MessageContent(t *testing.T) {
	mailer := new(MockMailer)
	var sent smtp.Message
	mailer.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(0).(smtp.Message)
	}).Return(nil)

	service := NewSenderService(mailer, newNoopLogger())
	err := service.Send(models.NotifyWelcome, []byte(`{"kind":"welcome","account_id":"a9","email":"buyer@example.com","name":"Yusuf","context":{"plan":"yearly"}}`))
	require.NoError(t, err)

	assert.Equal(t, models.NotifyWelcome, sent.Kind)
	assert.Equal(t, "a9", sent.AccountID)
	assert.Equal(t, "buyer@example.com", sent.To)
	assert.Equal(t, "Спасибо за подписку", sent.Subject)
	assert.Contains(t, sent.Body, "Yusuf")
	assert.Contains(t, sent.Body, "yearly")
}

func TestSenderService_MessageKindWins(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", to("u@example.com", models.NotifyAccessRevoked)).Return(nil).Once()

	service := NewSenderService(mailer, newNoopLogger())
	require.NoError(t, service.Send(models.NotifyAccessGranted, []byte(`{"kind":"access_revoked","email":"u@example.com"}`)))
	mailer.AssertExpectations(t)
}
