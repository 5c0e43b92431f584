package fine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/circulation-service/internal/fine"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var tests = []struct {
		name       string
		returnDate time.Time
		rate       string
		want       string
	}{
		{name: "on due date", returnDate: due, rate: "0.50", want: "0"},
		{name: "before due date", returnDate: due.AddDate(0, 0, -3), rate: "0.50", want: "0"},
		{name: "one day late", returnDate: due.AddDate(0, 0, 1), rate: "0.50", want: "0.5"},
		{name: "ten days late", returnDate: due.AddDate(0, 0, 10), rate: "0.50", want: "5"},
		{name: "partial day rounds up", returnDate: due.Add(24*time.Hour + time.Minute), rate: "1", want: "1"},
		{name: "morning return next day", returnDate: time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC), rate: "0.50", want: "0.5"},
		{name: "zero rate", returnDate: due.AddDate(0, 0, 7), rate: "0", want: "0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fine.Compute(due, tt.returnDate, decimal.RequireFromString(tt.rate))
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestComputeMonotonic(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rate := decimal.RequireFromString("0.50")
	for n := 0; n <= 40; n++ {
		got := fine.Compute(due, due.AddDate(0, 0, n), rate)
		want := rate.Mul(decimal.NewFromInt(int64(n)))
		require.True(t, got.Equal(want), "n=%d got %s want %s", n, got, want)
		require.Equal(t, n, fine.DaysLate(due, due.AddDate(0, 0, n)))
	}
}
