package service_test

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/internal/model"
	"github.com/Astemirdum/circulation-service/internal/repository"
)

// fakeStore is an in-memory repository.Repository. WithinTx snapshots every
// table and restores it when fn fails, so rollback semantics are observable
// in scenario tests.
type fakeStore struct {
	books        map[string]model.Book
	readers      map[string]model.Reader
	readerTypes  map[int]model.ReaderType
	borrows      map[string]model.BorrowRecord
	reservations map[string]model.Reservation
	config       map[string]string
	seq          int
}

var _ repository.Repository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:        map[string]model.Book{},
		readers:      map[string]model.Reader{},
		readerTypes:  map[int]model.ReaderType{},
		borrows:      map[string]model.BorrowRecord{},
		reservations: map[string]model.Reservation{},
		config:       map[string]string{},
	}
}

type fakeSnapshot struct {
	books        map[string]model.Book
	readers      map[string]model.Reader
	readerTypes  map[int]model.ReaderType
	borrows      map[string]model.BorrowRecord
	reservations map[string]model.Reservation
	config       map[string]string
	seq          int
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (f *fakeStore) snapshot() fakeSnapshot {
	return fakeSnapshot{
		books:        copyMap(f.books),
		readers:      copyMap(f.readers),
		readerTypes:  copyMap(f.readerTypes),
		borrows:      copyMap(f.borrows),
		reservations: copyMap(f.reservations),
		config:       copyMap(f.config),
		seq:          f.seq,
	}
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.books = s.books
	f.readers = s.readers
	f.readerTypes = s.readerTypes
	f.borrows = s.borrows
	f.reservations = s.reservations
	f.config = s.config
	f.seq = s.seq
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(store repository.Repository) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeStore) GetBook(_ context.Context, bookUid string) (model.Book, error) {
	b, ok := f.books[bookUid]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetBookForUpdate(ctx context.Context, bookUid string) (model.Book, error) {
	return f.GetBook(ctx, bookUid)
}

func (f *fakeStore) UpdateBookStatus(_ context.Context, bookUid string, status model.BookStatus) error {
	b, ok := f.books[bookUid]
	if !ok {
		return errs.ErrNotFound
	}
	b.Status = status
	f.books[bookUid] = b
	return nil
}

func (f *fakeStore) GetReader(_ context.Context, readerUid string) (model.Reader, error) {
	r, ok := f.readers[readerUid]
	if !ok {
		return model.Reader{}, errs.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetReaderType(_ context.Context, typeID int) (model.ReaderType, error) {
	rt, ok := f.readerTypes[typeID]
	if !ok {
		return model.ReaderType{}, errs.ErrNotFound
	}
	return rt, nil
}

func (f *fakeStore) GetBorrowRecord(_ context.Context, recordUid string) (model.BorrowRecord, error) {
	rec, ok := f.borrows[recordUid]
	if !ok {
		return model.BorrowRecord{}, errs.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) GetBorrowRecordForUpdate(ctx context.Context, recordUid string) (model.BorrowRecord, error) {
	return f.GetBorrowRecord(ctx, recordUid)
}

func (f *fakeStore) CountOpenBorrows(_ context.Context, readerUid string) (int, error) {
	count := 0
	for _, rec := range f.borrows {
		if rec.ReaderUid == readerUid &&
			(rec.Status == model.BorrowStatusActive || rec.Status == model.BorrowStatusOverdue) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) InsertBorrowRecord(_ context.Context, rec model.BorrowRecord) (model.BorrowRecord, error) {
	f.seq++
	rec.ID = f.seq
	rec.RecordUid = uuid.NewString()
	rec.FineAmount = decimal.Zero
	f.borrows[rec.RecordUid] = rec
	return rec, nil
}

func (f *fakeStore) MarkBorrowReturned(_ context.Context, recordUid string, returnDate time.Time, fineAmount decimal.Decimal) error {
	rec, ok := f.borrows[recordUid]
	if !ok || rec.Status == model.BorrowStatusReturned {
		return errs.ErrNotFound
	}
	rd := returnDate
	rec.Status = model.BorrowStatusReturned
	rec.ReturnDate = &rd
	rec.FineAmount = fineAmount
	f.borrows[recordUid] = rec
	return nil
}

func (f *fakeStore) UpdateBorrowRenewal(_ context.Context, recordUid string, newDueDate time.Time, renewCount int, status model.BorrowStatus) error {
	rec, ok := f.borrows[recordUid]
	if !ok {
		return errs.ErrNotFound
	}
	rec.DueDate = newDueDate
	rec.RenewCount = renewCount
	rec.Status = status
	f.borrows[recordUid] = rec
	return nil
}

func (f *fakeStore) SweepOverdue(_ context.Context, today time.Time) (int64, error) {
	var count int64
	for uid, rec := range f.borrows {
		if rec.Status == model.BorrowStatusReturned || rec.Status == model.BorrowStatusOverdue {
			continue
		}
		if rec.DueDate.Before(today) {
			rec.Status = model.BorrowStatusOverdue
			f.borrows[uid] = rec
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) GetReservationForUpdate(_ context.Context, reservationUid string) (model.Reservation, error) {
	rsv, ok := f.reservations[reservationUid]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	return rsv, nil
}

func sortByQueueOrder(items []model.Reservation) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ReserveDate.Equal(items[j].ReserveDate) {
			return items[i].ID < items[j].ID
		}
		return items[i].ReserveDate.Before(items[j].ReserveDate)
	})
}

func (f *fakeStore) GetPendingReservation(_ context.Context, bookUid, readerUid string) (model.Reservation, error) {
	var matches []model.Reservation
	for _, rsv := range f.reservations {
		if rsv.BookUid == bookUid && rsv.ReaderUid == readerUid && rsv.Status == model.ReservationStatusPending {
			matches = append(matches, rsv)
		}
	}
	if len(matches) == 0 {
		return model.Reservation{}, errs.ErrNotFound
	}
	sortByQueueOrder(matches)
	return matches[0], nil
}

func (f *fakeStore) HasOpenReservation(_ context.Context, bookUid, readerUid string) (bool, error) {
	for _, rsv := range f.reservations {
		if rsv.BookUid == bookUid && rsv.ReaderUid == readerUid &&
			(rsv.Status == model.ReservationStatusPending || rsv.Status == model.ReservationStatusFulfilled) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertReservation(_ context.Context, res model.Reservation) (model.Reservation, error) {
	f.seq++
	res.ID = f.seq
	res.ReservationUid = uuid.NewString()
	f.reservations[res.ReservationUid] = res
	return res, nil
}

func (f *fakeStore) UpdateReservationStatus(_ context.Context, reservationUid string, status model.ReservationStatus) error {
	rsv, ok := f.reservations[reservationUid]
	if !ok {
		return errs.ErrNotFound
	}
	rsv.Status = status
	f.reservations[reservationUid] = rsv
	return nil
}

func (f *fakeStore) OldestPendingReservation(_ context.Context, bookUid string) (model.Reservation, error) {
	var matches []model.Reservation
	for _, rsv := range f.reservations {
		if rsv.BookUid == bookUid && rsv.Status == model.ReservationStatusPending {
			matches = append(matches, rsv)
		}
	}
	if len(matches) == 0 {
		return model.Reservation{}, errs.ErrNotFound
	}
	sortByQueueOrder(matches)
	return matches[0], nil
}

func (f *fakeStore) ListExpiredPendingReservations(_ context.Context, today time.Time) ([]model.Reservation, error) {
	var items []model.Reservation
	for _, rsv := range f.reservations {
		if rsv.Status == model.ReservationStatusPending && rsv.ExpiryDate.Before(today) {
			items = append(items, rsv)
		}
	}
	sortByQueueOrder(items)
	return items, nil
}

func (f *fakeStore) GetConfigValue(_ context.Context, key string) (string, error) {
	v, ok := f.config[key]
	if !ok {
		return "", errs.ErrNotFound
	}
	return v, nil
}

func seedReaderType(f *fakeStore, rt model.ReaderType) int {
	f.seq++
	rt.ID = f.seq
	f.readerTypes[rt.ID] = rt
	return rt.ID
}

func seedReader(f *fakeStore, uid string, status model.ReaderStatus, typeID int) {
	f.seq++
	f.readers[uid] = model.Reader{ID: f.seq, ReaderUid: uid, Name: "reader " + uid[:8], TypeID: typeID, Status: status}
}

func seedBook(f *fakeStore, uid string, status model.BookStatus) {
	f.seq++
	f.books[uid] = model.Book{ID: f.seq, BookUid: uid, Title: "book " + uid[:8], Author: "author", Status: status}
}

func seedBorrow(f *fakeStore, uid, bookUid, readerUid string, status model.BorrowStatus, borrowDate, dueDate time.Time, renews int) {
	f.seq++
	f.borrows[uid] = model.BorrowRecord{
		ID: f.seq, RecordUid: uid, BookUid: bookUid, ReaderUid: readerUid,
		OperatorUid: operator1, Status: status, BorrowDate: borrowDate, DueDate: dueDate,
		FineAmount: decimal.Zero, RenewCount: renews,
	}
}

func seedReservation(f *fakeStore, uid, bookUid, readerUid string, status model.ReservationStatus, reserveDate, expiryDate time.Time) {
	f.seq++
	f.reservations[uid] = model.Reservation{
		ID: f.seq, ReservationUid: uid, BookUid: bookUid, ReaderUid: readerUid,
		Status: status, ReserveDate: reserveDate, ExpiryDate: expiryDate,
	}
}
