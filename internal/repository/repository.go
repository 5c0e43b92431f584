package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/internal/model"
)

type Repository interface {
	// WithinTx runs fn against a transaction-scoped Repository. All reads
	// and writes fn performs commit together or not at all; fn returning an
	// error rolls everything back. Nested calls reuse the open transaction.
	WithinTx(ctx context.Context, fn func(store Repository) error) error

	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	GetBookForUpdate(ctx context.Context, bookUid string) (model.Book, error)
	UpdateBookStatus(ctx context.Context, bookUid string, status model.BookStatus) error

	GetReader(ctx context.Context, readerUid string) (model.Reader, error)
	GetReaderType(ctx context.Context, typeID int) (model.ReaderType, error)

	GetBorrowRecord(ctx context.Context, recordUid string) (model.BorrowRecord, error)
	GetBorrowRecordForUpdate(ctx context.Context, recordUid string) (model.BorrowRecord, error)
	CountOpenBorrows(ctx context.Context, readerUid string) (int, error)
	InsertBorrowRecord(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error)
	MarkBorrowReturned(ctx context.Context, recordUid string, returnDate time.Time, fineAmount decimal.Decimal) error
	UpdateBorrowRenewal(ctx context.Context, recordUid string, newDueDate time.Time, renewCount int, status model.BorrowStatus) error
	SweepOverdue(ctx context.Context, today time.Time) (int64, error)

	GetReservationForUpdate(ctx context.Context, reservationUid string) (model.Reservation, error)
	GetPendingReservation(ctx context.Context, bookUid, readerUid string) (model.Reservation, error)
	HasOpenReservation(ctx context.Context, bookUid, readerUid string) (bool, error)
	InsertReservation(ctx context.Context, res model.Reservation) (model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationUid string, status model.ReservationStatus) error
	OldestPendingReservation(ctx context.Context, bookUid string) (model.Reservation, error)
	ListExpiredPendingReservations(ctx context.Context, today time.Time) ([]model.Reservation, error)

	GetConfigValue(ctx context.Context, key string) (string, error)
}

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repository method works the same inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
	db   querier
	log  *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		pool: db,
		db:   db,
		log:  log.Named("repo"),
	}, nil
}

const (
	booksTableName         = `books`
	readersTableName       = `readers`
	readerTypesTableName   = `reader_types`
	borrowRecordsTableName = `borrow_records`
	reservationsTableName  = `reservations`
	configTableName        = `config`

	// partial unique index over (book_uid, reader_uid) while a reservation
	// is PENDING or FULFILLED, see migrations
	reservationOpenIdx = `reservations_open_book_reader_idx`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) WithinTx(ctx context.Context, fn func(store Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&repository{db: tx, log: r.log})
	})
	return classify(err)
}

// classify turns raw driver errors escaping a transaction into the engine's
// failure taxonomy. Domain errors produced inside fn pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var domain *errs.Error
	if errors.As(err, &domain) || errors.Is(err, errs.ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure:
			return errs.Persistence("transaction conflict", errors.Wrap(errs.ErrConflict, pgErr.Error()))
		case pgerrcode.UniqueViolation:
			if pgErr.ConstraintName == reservationOpenIdx {
				return errs.PolicyViolation("reader already holds an open reservation for this book")
			}
		}
	}
	return errs.Persistence("transaction failed", err)
}

func (r *repository) getBook(ctx context.Context, bookUid string, forUpdate bool) (model.Book, error) {
	q := qb.Select("id", "book_uid", "title", "author", "status").
		From(booksTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Limit(1)
	if forUpdate {
		q = q.Suffix("for update")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Book{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Book{}, err
	}
	defer rows.Close()

	book, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	return r.getBook(ctx, bookUid, false)
}

func (r *repository) GetBookForUpdate(ctx context.Context, bookUid string) (model.Book, error) {
	return r.getBook(ctx, bookUid, true)
}

func (r *repository) UpdateBookStatus(ctx context.Context, bookUid string, status model.BookStatus) error {
	query, args, err := qb.Update(booksTableName).
		Set("status", status).
		Where(sq.Eq{"book_uid": bookUid}).
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

func (r *repository) GetReader(ctx context.Context, readerUid string) (model.Reader, error) {
	query, args, err := qb.Select("id", "reader_uid", "name", "type_id", "status").
		From(readersTableName).
		Where(sq.Eq{"reader_uid": readerUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Reader{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Reader{}, err
	}
	defer rows.Close()

	reader, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Reader])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Reader{}, errs.ErrNotFound
		}
		return model.Reader{}, err
	}
	return reader, nil
}

func (r *repository) GetReaderType(ctx context.Context, typeID int) (model.ReaderType, error) {
	query, args, err := qb.Select("id", "name", "max_borrow_count", "max_loan_days", "max_renew_count", "renewable").
		From(readerTypesTableName).
		Where(sq.Eq{"id": typeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.ReaderType{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.ReaderType{}, err
	}
	defer rows.Close()

	rt, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ReaderType])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReaderType{}, errs.ErrNotFound
		}
		return model.ReaderType{}, err
	}
	return rt, nil
}

func (r *repository) GetConfigValue(ctx context.Context, key string) (string, error) {
	query, args, err := qb.Select("value").
		From(configTableName).
		Where(sq.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}
	var value string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return value, nil
}
