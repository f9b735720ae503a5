// Package jobs запускает фоновые задачи сервиса по расписанию.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultJobTimeout    = time.Minute
	purgeSessionsSpec    = "0 0 * * * *"
	jobNameReconcile     = "reconcile-availability"
	jobNamePurgeSessions = "purge-sessions"
)

// AvailabilityRefresher пересчитывает кэш доступности автомобилей.
type AvailabilityRefresher interface {
	RefreshAvailability(ctx context.Context) (int, error)
}

// SessionPurger удаляет истёкшие сессии.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler управляет периодическими задачами.
type Scheduler struct {
	cron       *cron.Cron
	refresher  AvailabilityRefresher
	purger     SessionPurger
	logger     *zap.Logger
	jobTimeout time.Duration
	now        func() time.Time
}

// NewScheduler регистрирует задачи. reconcileSpec задаётся в формате cron с секундами.
// purger может быть nil, если сессии не хранятся в БД.
func NewScheduler(reconcileSpec string, refresher AvailabilityRefresher, purger SessionPurger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		refresher:  refresher,
		purger:     purger,
		logger:     logger,
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
	}

	if _, err := s.cron.AddFunc(reconcileSpec, s.reconcile); err != nil {
		return nil, fmt.Errorf("register %s job: %w", jobNameReconcile, err)
	}
	if purger != nil {
		if _, err := s.cron.AddFunc(purgeSessionsSpec, s.purgeSessions); err != nil {
			return nil, fmt.Errorf("register %s job: %w", jobNamePurgeSessions, err)
		}
	}

	return s, nil
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) reconcile() {
	s.run(jobNameReconcile, func(ctx context.Context) error {
		fixed, err := s.refresher.RefreshAvailability(ctx)
		if err != nil {
			return err
		}
		if fixed > 0 {
			s.logger.Info("car availability reconciled", zap.Int("fixed", fixed))
		}
		return nil
	})
}

func (s *Scheduler) purgeSessions() {
	s.run(jobNamePurgeSessions, func(ctx context.Context) error {
		n, err := s.purger.PurgeExpired(ctx, s.now())
		if err != nil {
			return err
		}
		s.logger.Debug("expired sessions purged", zap.Int64("count", n))
		return nil
	})
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}
