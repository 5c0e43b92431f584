package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Astemirdum/circulation-service/internal/audit"
	"github.com/Astemirdum/circulation-service/internal/model"
	"github.com/Astemirdum/circulation-service/internal/repository"
	"github.com/Astemirdum/circulation-service/pkg/retry"
)

// minSweepSpacing is the floor between sweep rounds regardless of how fast
// kicks arrive.
const minSweepSpacing = 10 * time.Second

// Sweeper runs the idempotent batch jobs that age circulation rows: open
// borrow records past their due date become OVERDUE, pending reservations
// past their expiry date become EXPIRED. Concurrent invocations of the same
// sweep coalesce into one run.
type Sweeper struct {
	log   *zap.Logger
	repo  repository.Repository
	audit AuditSink
	now   func() time.Time

	group    singleflight.Group
	interval time.Duration
	limiter  *rate.Limiter
	kick     chan struct{}
}

func NewSweeper(repo repository.Repository, sink AuditSink, log *zap.Logger, interval time.Duration, opts ...Option) *Sweeper {
	o := newOptions(opts...)
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		log:      log.Named("sweeper"),
		repo:     repo,
		audit:    sink,
		now:      o.now,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(minSweepSpacing), 1),
		kick:     make(chan struct{}, 1),
	}
}

// SweepOverdue ages every open borrow record whose due date has passed and
// returns how many rows changed. Re-running with no intervening writes is a
// no-op returning 0.
func (s *Sweeper) SweepOverdue(ctx context.Context) (int64, error) {
	v, err, _ := s.group.Do("overdue", func() (any, error) {
		var count int64
		err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
			var err error
			count, err = store.SweepOverdue(ctx, model.DateOf(s.now()))
			return err
		})
		return count, err
	})
	if err != nil {
		return 0, err
	}
	count := v.(int64)
	if count > 0 {
		recordAudit(ctx, s.log, s.audit, audit.Event{
			ActorUid:   audit.SystemActor,
			Action:     audit.ActionSweepOverdue,
			OccurredAt: s.now().UTC(),
			Detail:     map[string]any{"count": count},
		})
	}
	return count, nil
}

// SweepExpiredReservations expires every lapsed PENDING reservation and runs
// the same promotion check as Cancel for each, all in one transaction.
func (s *Sweeper) SweepExpiredReservations(ctx context.Context) (int64, error) {
	v, err, _ := s.group.Do("reservations", func() (any, error) {
		var count int64
		err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
			expired, err := store.ListExpiredPendingReservations(ctx, model.DateOf(s.now()))
			if err != nil {
				return err
			}
			for _, rsv := range expired {
				if err := store.UpdateReservationStatus(ctx, rsv.ReservationUid, model.ReservationStatusExpired); err != nil {
					return err
				}
				if err := releaseIfQueueEmpty(ctx, store, rsv.BookUid); err != nil {
					return err
				}
				count++
			}
			return nil
		})
		return count, err
	})
	if err != nil {
		return 0, err
	}
	count := v.(int64)
	if count > 0 {
		recordAudit(ctx, s.log, s.audit, audit.Event{
			ActorUid:   audit.SystemActor,
			Action:     audit.ActionSweepReservations,
			OccurredAt: s.now().UTC(),
			Detail:     map[string]any{"count": count},
		})
	}
	return count, nil
}

// Run drives both sweeps until ctx is done: once at start, then on every
// tick and on every Kick. The limiter keeps kicked rounds from stacking up
// behind the timer.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}
		if !s.limiter.Allow() {
			s.log.Debug("sweep round skipped by rate limit")
			continue
		}
		s.sweep(ctx)
	}
}

// Kick requests an immediate sweep round, e.g. on SIGHUP. Never blocks.
func (s *Sweeper) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	var n int64
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.SweepOverdue(ctx)
		return err
	})
	if err != nil {
		s.log.Error("sweep overdue", zap.Error(err))
	} else if n > 0 {
		s.log.Info("borrow records aged to overdue", zap.Int64("count", n))
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.SweepExpiredReservations(ctx)
		return err
	})
	if err != nil {
		s.log.Error("sweep expired reservations", zap.Error(err))
	} else if n > 0 {
		s.log.Info("reservations expired", zap.Int64("count", n))
	}
}
