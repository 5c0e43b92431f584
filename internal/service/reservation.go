package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/audit"
	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/internal/inventory"
	"github.com/Astemirdum/circulation-service/internal/model"
	"github.com/Astemirdum/circulation-service/internal/repository"
)

// reservationTTLDays is how long a pending reservation holds its place in
// the queue before the expiry sweep ages it out.
const reservationTTLDays = 30

// Reservations manages the FIFO-by-reserve-date waiting list of a book.
type Reservations struct {
	log   *zap.Logger
	repo  repository.Repository
	audit AuditSink
	now   func() time.Time
}

func NewReservations(repo repository.Repository, sink AuditSink, log *zap.Logger, opts ...Option) *Reservations {
	o := newOptions(opts...)
	return &Reservations{
		log:   log.Named("reservation"),
		repo:  repo,
		audit: sink,
		now:   o.now,
	}
}

func (s *Reservations) Reserve(ctx context.Context, req model.ReserveRequest) (model.ReserveResult, error) {
	var (
		res   model.ReserveResult
		today = model.DateOf(s.now())
	)
	err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
		book, err := store.GetBookForUpdate(ctx, req.BookUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("book does not exist")
			}
			return err
		}
		if book.Status == model.BookStatusDeleted {
			return errs.InvalidState("book is deleted")
		}
		reader, err := store.GetReader(ctx, req.ReaderUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("reader does not exist")
			}
			return err
		}
		if reader.Status != model.ReaderStatusActive {
			return errs.InvalidState(fmt.Sprintf("reader is not active: %s", reader.Status))
		}
		open, err := store.HasOpenReservation(ctx, req.BookUid, req.ReaderUid)
		if err != nil {
			return err
		}
		if open {
			return errs.PolicyViolation("reader already holds an open reservation for this book")
		}

		ins, err := store.InsertReservation(ctx, model.Reservation{
			BookUid:     req.BookUid,
			ReaderUid:   req.ReaderUid,
			Status:      model.ReservationStatusPending,
			ReserveDate: today,
			ExpiryDate:  today.AddDate(0, 0, reservationTTLDays),
		})
		if err != nil {
			return err
		}
		// Only the first reservation of an available book marks it RESERVED.
		// A book already out, or already reserved, is untouched: later
		// reservations just queue in reserve-date order.
		if book.Status == model.BookStatusAvailable {
			next, err := inventory.Apply(book.Status, inventory.EventReserve)
			if err != nil {
				return err
			}
			if err := store.UpdateBookStatus(ctx, req.BookUid, next); err != nil {
				return err
			}
		}

		res = model.ReserveResult{ReservationUid: ins.ReservationUid, ExpiryDate: ins.ExpiryDate}
		return nil
	})
	if err != nil {
		return model.ReserveResult{}, err
	}

	recordAudit(ctx, s.log, s.audit, audit.Event{
		ActorUid:   req.ReaderUid,
		Action:     audit.ActionReserve,
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"bookUid":        req.BookUid,
			"reservationUid": res.ReservationUid,
			"expiryDate":     res.ExpiryDate.Format(time.DateOnly),
		},
	})
	return res, nil
}

func (s *Reservations) Cancel(ctx context.Context, reservationUid string) error {
	var readerUid, bookUid string
	err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
		rsv, err := store.GetReservationForUpdate(ctx, reservationUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("reservation does not exist")
			}
			return err
		}
		if rsv.Status != model.ReservationStatusPending {
			return errs.InvalidState(fmt.Sprintf("reservation is already processed: %s", rsv.Status))
		}
		if err := store.UpdateReservationStatus(ctx, reservationUid, model.ReservationStatusCancelled); err != nil {
			return err
		}
		if err := releaseIfQueueEmpty(ctx, store, rsv.BookUid); err != nil {
			return err
		}
		readerUid, bookUid = rsv.ReaderUid, rsv.BookUid
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(ctx, s.log, s.audit, audit.Event{
		ActorUid:   readerUid,
		Action:     audit.ActionCancelReservation,
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"bookUid":        bookUid,
			"reservationUid": reservationUid,
		},
	})
	return nil
}

// releaseIfQueueEmpty is the promotion check shared by Cancel and the
// expiry sweep: once the last PENDING reservation on a book lapses, a
// RESERVED book goes back to AVAILABLE. No successor is ever promoted to
// FULFILLED here; fulfillment only happens through Lending.Borrow.
func releaseIfQueueEmpty(ctx context.Context, store repository.Repository, bookUid string) error {
	book, err := store.GetBookForUpdate(ctx, bookUid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.Persistence("book row missing for reservation", err)
		}
		return err
	}
	if book.Status == model.BookStatusDeleted {
		return nil
	}
	_, err = store.OldestPendingReservation(ctx, bookUid)
	switch {
	case err == nil:
		// the queue still has a head, book stays as it is
		return nil
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}
	if next, terr := inventory.Apply(book.Status, inventory.EventRelease); terr == nil {
		return store.UpdateBookStatus(ctx, bookUid, next)
	}
	return nil
}
