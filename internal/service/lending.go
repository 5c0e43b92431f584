package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/audit"
	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/internal/fine"
	"github.com/Astemirdum/circulation-service/internal/inventory"
	"github.com/Astemirdum/circulation-service/internal/model"
	"github.com/Astemirdum/circulation-service/internal/repository"
)

// Lending executes borrow, return and renew. Each operation runs inside one
// store transaction: a failure anywhere rolls back every write of that call.
// Book status changes always go through the inventory transition table.
type Lending struct {
	log    *zap.Logger
	repo   repository.Repository
	policy PolicyProvider
	audit  AuditSink
	now    func() time.Time
}

func NewLending(repo repository.Repository, pol PolicyProvider, sink AuditSink, log *zap.Logger, opts ...Option) *Lending {
	o := newOptions(opts...)
	return &Lending{
		log:    log.Named("lending"),
		repo:   repo,
		policy: pol,
		audit:  sink,
		now:    o.now,
	}
}

func (s *Lending) Borrow(ctx context.Context, req model.BorrowRequest) (model.BorrowResult, error) {
	var (
		res   model.BorrowResult
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
		nextBookStatus, err := inventory.Apply(book.Status, inventory.EventBorrow)
		if err != nil {
			return errs.InvalidState(fmt.Sprintf("book is not available for borrowing: %s", book.Status))
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
		rt, err := store.GetReaderType(ctx, reader.TypeID)
		if err != nil {
			return errors.Wrap(err, "get reader type")
		}
		open, err := store.CountOpenBorrows(ctx, req.ReaderUid)
		if err != nil {
			return err
		}
		if open >= rt.MaxBorrowCount {
			return errs.PolicyViolation(fmt.Sprintf("borrow quota exceeded: %d of %d", open, rt.MaxBorrowCount))
		}

		rec, err := store.InsertBorrowRecord(ctx, model.BorrowRecord{
			BookUid:     req.BookUid,
			ReaderUid:   req.ReaderUid,
			OperatorUid: req.OperatorUid,
			Status:      model.BorrowStatusActive,
			BorrowDate:  today,
			DueDate:     today.AddDate(0, 0, rt.MaxLoanDays),
		})
		if err != nil {
			return err
		}
		if err := store.UpdateBookStatus(ctx, req.BookUid, nextBookStatus); err != nil {
			return err
		}

		// The borrowing reader's own pending reservation is consumed by the
		// borrow. A reservation held by someone else does not block a
		// walk-in borrow and stays PENDING.
		pending, err := store.GetPendingReservation(ctx, req.BookUid, req.ReaderUid)
		switch {
		case err == nil:
			if err := store.UpdateReservationStatus(ctx, pending.ReservationUid, model.ReservationStatusFulfilled); err != nil {
				return err
			}
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}

		res = model.BorrowResult{RecordUid: rec.RecordUid, DueDate: rec.DueDate}
		return nil
	})
	if err != nil {
		return model.BorrowResult{}, err
	}

	recordAudit(ctx, s.log, s.audit, audit.Event{
		ActorUid:   req.OperatorUid,
		Action:     audit.ActionBorrow,
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"bookUid":   req.BookUid,
			"readerUid": req.ReaderUid,
			"recordUid": res.RecordUid,
			"dueDate":   res.DueDate.Format(time.DateOnly),
		},
	})
	return res, nil
}

func (s *Lending) Return(ctx context.Context, req model.ReturnRequest) (model.ReturnResult, error) {
	var (
		res     model.ReturnResult
		bookUid string
		today   = model.DateOf(s.now())
	)
	err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
		rec, err := store.GetBorrowRecordForUpdate(ctx, req.RecordUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("borrow record does not exist")
			}
			return err
		}
		if rec.Status == model.BorrowStatusReturned {
			return errs.InvalidState("borrow record is already returned")
		}

		rate := s.policy.FineRate(ctx)
		amount := fine.Compute(rec.DueDate, today, rate)
		if err := store.MarkBorrowReturned(ctx, req.RecordUid, today, amount); err != nil {
			return err
		}

		book, err := store.GetBookForUpdate(ctx, rec.BookUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.Persistence("book row missing for borrow record", err)
			}
			return err
		}
		// A deleted book's inventory state is never resurrected; any other
		// status goes back to AVAILABLE through the transition table.
		if next, terr := inventory.Apply(book.Status, inventory.EventReturn); terr == nil {
			if err := store.UpdateBookStatus(ctx, book.BookUid, next); err != nil {
				return err
			}
		}

		bookUid = rec.BookUid
		res = model.ReturnResult{FineAmount: amount, DaysLate: fine.DaysLate(rec.DueDate, today)}
		return nil
	})
	if err != nil {
		return model.ReturnResult{}, err
	}

	recordAudit(ctx, s.log, s.audit, audit.Event{
		ActorUid:   req.OperatorUid,
		Action:     audit.ActionReturn,
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"recordUid":  req.RecordUid,
			"bookUid":    bookUid,
			"fineAmount": res.FineAmount.String(),
			"daysLate":   res.DaysLate,
		},
	})
	return res, nil
}

func (s *Lending) Renew(ctx context.Context, req model.RenewRequest) (model.RenewResult, error) {
	var (
		res   model.RenewResult
		today = model.DateOf(s.now())
	)
	err := s.repo.WithinTx(ctx, func(store repository.Repository) error {
		rec, err := store.GetBorrowRecordForUpdate(ctx, req.RecordUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("borrow record does not exist")
			}
			return err
		}
		if rec.Status == model.BorrowStatusReturned {
			return errs.InvalidState("borrow record is already returned")
		}

		book, err := store.GetBook(ctx, rec.BookUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("book does not exist")
			}
			return err
		}
		switch book.Status {
		case model.BookStatusDeleted, model.BookStatusDamaged, model.BookStatusLost:
			return errs.InvalidState(fmt.Sprintf("book is not lendable: %s", book.Status))
		}

		reader, err := store.GetReader(ctx, rec.ReaderUid)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.NotFound("reader does not exist")
			}
			return err
		}
		if reader.Status != model.ReaderStatusActive {
			return errs.InvalidState(fmt.Sprintf("reader is not active: %s", reader.Status))
		}
		rt, err := store.GetReaderType(ctx, reader.TypeID)
		if err != nil {
			return errors.Wrap(err, "get reader type")
		}
		if !rt.Renewable {
			return errs.PolicyViolation("renewal is not permitted for this reader type")
		}
		if rec.RenewCount >= rt.MaxRenewCount {
			return errs.PolicyViolation(fmt.Sprintf("renewal limit reached: %d", rt.MaxRenewCount))
		}

		// Extension is relative to the current due date, not today, so
		// consecutive renewals compound.
		newDue := model.DateOf(rec.DueDate).AddDate(0, 0, rt.MaxLoanDays)
		status := rec.Status
		if status == model.BorrowStatusOverdue && newDue.After(today) {
			status = model.BorrowStatusActive
		}
		if err := store.UpdateBorrowRenewal(ctx, req.RecordUid, newDue, rec.RenewCount+1, status); err != nil {
			return err
		}

		res = model.RenewResult{NewDueDate: newDue, RenewCount: rec.RenewCount + 1}
		return nil
	})
	if err != nil {
		return model.RenewResult{}, err
	}

	recordAudit(ctx, s.log, s.audit, audit.Event{
		ActorUid:   req.OperatorUid,
		Action:     audit.ActionRenew,
		OccurredAt: s.now().UTC(),
		Detail: map[string]any{
			"recordUid":  req.RecordUid,
			"newDueDate": res.NewDueDate.Format(time.DateOnly),
			"renewCount": res.RenewCount,
		},
	})
	return res, nil
}
