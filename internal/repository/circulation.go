package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/internal/model"
)

func (r *repository) getBorrowRecord(ctx context.Context, recordUid string, forUpdate bool) (model.BorrowRecord, error) {
	q := qb.Select("id", "record_uid", "book_uid", "reader_uid", "operator_uid", "status",
		"borrow_date", "due_date", "return_date", "fine_amount", "renew_count").
		From(borrowRecordsTableName).
		Where(sq.Eq{"record_uid": recordUid}).
		Limit(1)
	if forUpdate {
		q = q.Suffix("for update")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	defer rows.Close()

	rec, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BorrowRecord])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrNotFound
		}
		return model.BorrowRecord{}, err
	}
	return rec, nil
}

func (r *repository) GetBorrowRecord(ctx context.Context, recordUid string) (model.BorrowRecord, error) {
	return r.getBorrowRecord(ctx, recordUid, false)
}

func (r *repository) GetBorrowRecordForUpdate(ctx context.Context, recordUid string) (model.BorrowRecord, error) {
	return r.getBorrowRecord(ctx, recordUid, true)
}

func (r *repository) CountOpenBorrows(ctx context.Context, readerUid string) (int, error) {
	q := `
	select count(*) from borrow_records
	where reader_uid = $1 and status in ('ACTIVE', 'OVERDUE')
`
	var count int
	if err := r.db.QueryRow(ctx, q, readerUid).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) InsertBorrowRecord(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error) {
	query, args, err := qb.Insert(borrowRecordsTableName).
		Columns("record_uid", "book_uid", "reader_uid", "operator_uid", "status", "borrow_date", "due_date").
		Values(uuid.New(), rec.BookUid, rec.ReaderUid, rec.OperatorUid, rec.Status, rec.BorrowDate, rec.DueDate).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("InsertBorrowRecord", zap.String("q", query), zap.Any("args", args))
		return model.BorrowRecord{}, err
	}
	defer rows.Close()

	inserted, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BorrowRecord])
	if err != nil {
		return model.BorrowRecord{}, err
	}
	return inserted, nil
}

func (r *repository) MarkBorrowReturned(ctx context.Context, recordUid string, returnDate time.Time, fineAmount decimal.Decimal) error {
	q := fmt.Sprintf(`
update %s
    set status = @status, return_date = @return_date, fine_amount = @fine_amount
where record_uid = @record_uid and status <> @status`, borrowRecordsTableName)
	args := pgx.NamedArgs{
		"status":      model.BorrowStatusReturned,
		"return_date": returnDate,
		"fine_amount": fineAmount,
		"record_uid":  recordUid,
	}
	tag, err := r.db.Exec(ctx, q, args)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateBorrowRenewal(ctx context.Context, recordUid string, newDueDate time.Time, renewCount int, status model.BorrowStatus) error {
	query, args, err := qb.Update(borrowRecordsTableName).
		Set("due_date", newDueDate).
		Set("renew_count", renewCount).
		Set("status", status).
		Where(sq.Eq{"record_uid": recordUid}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SweepOverdue ages every open record whose due date has passed. Settled
// rows are excluded, so re-running is a no-op.
func (r *repository) SweepOverdue(ctx context.Context, today time.Time) (int64, error) {
	q := fmt.Sprintf(`
update %s
    set status = 'OVERDUE'
where due_date < @today and status not in ('RETURNED', 'OVERDUE')`, borrowRecordsTableName)
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"today": today})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) GetReservationForUpdate(ctx context.Context, reservationUid string) (model.Reservation, error) {
	query, args, err := qb.Select("id", "reservation_uid", "book_uid", "reader_uid", "status", "reserve_date", "expiry_date").
		From(reservationsTableName).
		Where(sq.Eq{"reservation_uid": reservationUid}).
		Limit(1).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Reservation{}, err
	}
	defer rows.Close()

	res, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, err
	}
	return res, nil
}

// GetPendingReservation finds the reader's own PENDING reservation on a
// book, locking it for the fulfillment write.
func (r *repository) GetPendingReservation(ctx context.Context, bookUid, readerUid string) (model.Reservation, error) {
	query, args, err := qb.Select("id", "reservation_uid", "book_uid", "reader_uid", "status", "reserve_date", "expiry_date").
		From(reservationsTableName).
		Where(sq.Eq{"book_uid": bookUid, "reader_uid": readerUid, "status": model.ReservationStatusPending}).
		OrderBy("reserve_date asc", "id asc").
		Limit(1).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Reservation{}, err
	}
	defer rows.Close()

	res, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *repository) HasOpenReservation(ctx context.Context, bookUid, readerUid string) (bool, error) {
	q := `
	select count(*) from reservations
	where book_uid = $1 and reader_uid = $2 and status in ('PENDING', 'FULFILLED')
`
	var count int
	if err := r.db.QueryRow(ctx, q, bookUid, readerUid).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) InsertReservation(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	query, args, err := qb.Insert(reservationsTableName).
		Columns("reservation_uid", "book_uid", "reader_uid", "status", "reserve_date", "expiry_date").
		Values(uuid.New(), res.BookUid, res.ReaderUid, res.Status, res.ReserveDate, res.ExpiryDate).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("InsertReservation", zap.String("q", query), zap.Any("args", args))
		return model.Reservation{}, err
	}
	defer rows.Close()

	inserted, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		return model.Reservation{}, err
	}
	return inserted, nil
}

func (r *repository) UpdateReservationStatus(ctx context.Context, reservationUid string, status model.ReservationStatus) error {
	query, args, err := qb.Update(reservationsTableName).
		Set("status", status).
		Where(sq.Eq{"reservation_uid": reservationUid}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// OldestPendingReservation is the FIFO head of a book's waiting list.
func (r *repository) OldestPendingReservation(ctx context.Context, bookUid string) (model.Reservation, error) {
	query, args, err := qb.Select("id", "reservation_uid", "book_uid", "reader_uid", "status", "reserve_date", "expiry_date").
		From(reservationsTableName).
		Where(sq.Eq{"book_uid": bookUid, "status": model.ReservationStatusPending}).
		OrderBy("reserve_date asc", "id asc").
		Limit(1).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Reservation{}, err
	}
	defer rows.Close()

	res, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *repository) ListExpiredPendingReservations(ctx context.Context, today time.Time) ([]model.Reservation, error) {
	query, args, err := qb.Select("id", "reservation_uid", "book_uid", "reader_uid", "status", "reserve_date", "expiry_date").
		From(reservationsTableName).
		Where(sq.Eq{"status": model.ReservationStatusPending}).
		Where(sq.Lt{"expiry_date": today}).
		OrderBy("reserve_date asc", "id asc").
		Suffix("for update").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Reservation])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	return items, nil
}
