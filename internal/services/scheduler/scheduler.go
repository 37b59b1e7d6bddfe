// Package scheduler рассылает напоминания об окончании доступа.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/access"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// AccountRepository выборка аккаунтов по дате окончания доступа.
type AccountRepository interface {
	ListAccountsExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error)
}

// Publisher публикация сообщения в exchange уведомлений.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Locker отметка "напоминание уже отправлено".
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SchedulerService ищет аккаунты с истекающим доступом.
type SchedulerService struct {
	repo   AccountRepository
	pub    Publisher
	locker Locker
	window time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService. locker может
// быть nil, тогда напоминание повторяется при каждом запуске.
func NewSchedulerService(repo AccountRepository, pub Publisher, locker Locker, window time.Duration, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:   repo,
		pub:    pub,
		locker: locker,
		window: window,
		log:    log,
		now:    time.Now,
	}
}

// Run запускает проверку сразу и затем раз в interval, пока ctx не отменён.
func (s *SchedulerService) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("expiring access check failed", sl.Err(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("expiring access check failed", sl.Err(err))
			}
		}
	}
}

// RunOnce публикует access_expiring для аккаунтов, чей доступ действует сейчас
// и заканчивается в пределах окна. Возвращает число отправленных напоминаний.
func (s *SchedulerService) RunOnce(ctx context.Context) (int, error) {
	const op = "scheduler.RunOnce"
	log := s.log.With(slog.String("op", op))

	now := s.now()
	accounts, err := s.repo.ListAccountsExpiringBetween(ctx, now, now.Add(s.window))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(accounts) == 0 {
		log.Info("no expiring access found")
		return 0, nil
	}

	sent := 0
	for _, a := range accounts {
		if a.SubscriptionEndDate == nil || !access.Evaluate(a, now).Allowed {
			continue
		}
		if s.locker != nil {
			key := "reminder:" + a.ID + ":" + strconv.FormatInt(a.SubscriptionEndDate.Unix(), 10)
			ok, err := s.locker.Acquire(ctx, key, s.window)
			if err != nil {
				log.Warn("reminder lock unavailable", slog.String("account_id", a.ID), sl.Err(err))
			} else if !ok {
				continue
			}
		}

		msg := models.Notification{
			Kind:      models.NotifyAccessExpiring,
			AccountID: a.ID,
			Email:     a.Email,
			Name:      a.Name,
			Context:   map[string]string{"end_date": a.SubscriptionEndDate.Format("2006-01-02")},
		}
		if err := s.pub.Publish(string(models.NotifyAccessExpiring), msg); err != nil {
			log.Error("failed to publish message", slog.String("account_id", a.ID), sl.Err(err))
			continue
		}
		sent++
	}
	log.Info("expiring access reminders published", slog.Int("count", sent))
	return sent, nil
}
