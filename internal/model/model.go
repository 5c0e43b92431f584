package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookStatus string

const (
	BookStatusAvailable BookStatus = "AVAILABLE"
	BookStatusBorrowed  BookStatus = "BORROWED"
	BookStatusReserved  BookStatus = "RESERVED"
	BookStatusDamaged   BookStatus = "DAMAGED"
	BookStatusLost      BookStatus = "LOST"
	BookStatusDeleted   BookStatus = "DELETED"
)

type ReaderStatus string

const (
	ReaderStatusActive       ReaderStatus = "ACTIVE"
	ReaderStatusSuspended    ReaderStatus = "SUSPENDED"
	ReaderStatusDeregistered ReaderStatus = "DEREGISTERED"
)

type BorrowStatus string

const (
	BorrowStatusActive   BorrowStatus = "ACTIVE"
	BorrowStatusReturned BorrowStatus = "RETURNED"
	BorrowStatusOverdue  BorrowStatus = "OVERDUE"
	// BorrowStatusRenewed is declared for schema compatibility; renewals keep
	// a record ACTIVE and bump renew_count instead of writing this status.
	BorrowStatusRenewed BorrowStatus = "RENEWED"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

type Book struct {
	ID      int        `json:"-" db:"id"`
	BookUid string     `json:"bookUid" db:"book_uid"`
	Title   string     `json:"title" db:"title"`
	Author  string     `json:"author" db:"author"`
	Status  BookStatus `json:"status" db:"status"`
}

type ReaderType struct {
	ID             int    `json:"-" db:"id"`
	Name           string `json:"name" db:"name"`
	MaxBorrowCount int    `json:"maxBorrowCount" db:"max_borrow_count"`
	MaxLoanDays    int    `json:"maxLoanDays" db:"max_loan_days"`
	MaxRenewCount  int    `json:"maxRenewCount" db:"max_renew_count"`
	Renewable      bool   `json:"renewable" db:"renewable"`
}

type Reader struct {
	ID        int          `json:"-" db:"id"`
	ReaderUid string       `json:"readerUid" db:"reader_uid"`
	Name      string       `json:"name" db:"name"`
	TypeID    int          `json:"-" db:"type_id"`
	Status    ReaderStatus `json:"status" db:"status"`
}

type BorrowRecord struct {
	ID          int             `json:"-" db:"id"`
	RecordUid   string          `json:"recordUid" db:"record_uid"`
	BookUid     string          `json:"bookUid" db:"book_uid"`
	ReaderUid   string          `json:"readerUid" db:"reader_uid"`
	OperatorUid string          `json:"operatorUid" db:"operator_uid"`
	Status      BorrowStatus    `json:"status" db:"status"`
	BorrowDate  time.Time       `json:"borrowDate" db:"borrow_date"`
	DueDate     time.Time       `json:"dueDate" db:"due_date"`
	ReturnDate  *time.Time      `json:"returnDate,omitempty" db:"return_date"`
	FineAmount  decimal.Decimal `json:"fineAmount" db:"fine_amount"`
	RenewCount  int             `json:"renewCount" db:"renew_count"`
}

type Reservation struct {
	ID             int               `json:"-" db:"id"`
	ReservationUid string            `json:"reservationUid" db:"reservation_uid"`
	BookUid        string            `json:"bookUid" db:"book_uid"`
	ReaderUid      string            `json:"readerUid" db:"reader_uid"`
	Status         ReservationStatus `json:"status" db:"status"`
	ReserveDate    time.Time         `json:"reserveDate" db:"reserve_date"`
	ExpiryDate     time.Time         `json:"expiryDate" db:"expiry_date"`
}

type BorrowRequest struct {
	BookUid     string `json:"bookUid" validate:"required,uuid"`
	ReaderUid   string `json:"readerUid" validate:"required,uuid"`
	OperatorUid string `json:"operatorUid" validate:"required"`
}

type BorrowResult struct {
	RecordUid string    `json:"recordUid"`
	DueDate   time.Time `json:"dueDate"`
}

type ReturnRequest struct {
	RecordUid   string `json:"recordUid" validate:"required,uuid"`
	OperatorUid string `json:"operatorUid" validate:"required"`
}

type ReturnResult struct {
	FineAmount decimal.Decimal `json:"fineAmount"`
	DaysLate   int             `json:"daysLate"`
}

type RenewRequest struct {
	RecordUid   string `json:"recordUid" validate:"required,uuid"`
	OperatorUid string `json:"operatorUid" validate:"required"`
}

type RenewResult struct {
	NewDueDate time.Time `json:"newDueDate"`
	RenewCount int       `json:"renewCount"`
}

type ReserveRequest struct {
	BookUid   string `json:"bookUid" validate:"required,uuid"`
	ReaderUid string `json:"readerUid" validate:"required,uuid"`
}

type ReserveResult struct {
	ReservationUid string    `json:"reservationUid"`
	ExpiryDate     time.Time `json:"expiryDate"`
}

// DateOf truncates t to its calendar date, midnight UTC. All lending math
// (due dates, fines, expiries) works on calendar dates, not instants.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
