package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/circulation-service/internal/model"
)

func TestDateOf(t *testing.T) {
	t.Parallel()

	msk := time.FixedZone("UTC+3", 3*60*60)

	var tests = []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "midnight utc unchanged",
			in:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "afternoon truncates to the date",
			in:   time.Date(2024, 5, 1, 15, 45, 30, 999, time.UTC),
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "zoned instant lands on its utc date",
			in:   time.Date(2024, 5, 2, 1, 30, 0, 0, msk),
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, model.DateOf(tt.in))
		})
	}
}
