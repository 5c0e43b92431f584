// Package fine computes overdue penalties. Pure arithmetic on calendar
// dates; the daily rate comes from the caller, read fresh from policy
// config at call time.
package fine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/circulation-service/internal/model"
)

// DaysLate counts whole calendar days between the due date and the return
// date. Dates are compared as dates, not instants: returning at 00:01 the
// day after the due date is one full day late.
func DaysLate(dueDate, returnDate time.Time) int {
	due := model.DateOf(dueDate)
	ret := model.DateOf(returnDate)
	if !ret.After(due) {
		return 0
	}
	return int(ret.Sub(due).Hours() / 24)
}

// Compute returns DaysLate(dueDate, returnDate) * dailyRate, zero when the
// return is on time.
func Compute(dueDate, returnDate time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	days := DaysLate(dueDate, returnDate)
	if days == 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(days)))
}
