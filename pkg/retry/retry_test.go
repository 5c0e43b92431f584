package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/circulation-service/internal/errs"
	"github.com/Astemirdum/circulation-service/pkg/retry"
)

func conflictErr() error {
	return errs.Persistence("transaction conflict", errors.Wrap(errs.ErrConflict, "deadlock detected"))
}

func TestDo(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name      string
		fn        func(calls *int) error
		options   []retry.Option
		wantCalls int
		wantErr   error
	}{
		{
			name:      "success on first attempt",
			fn:        func(*int) error { return nil },
			wantCalls: 1,
		},
		{
			name: "conflict retried until success",
			fn: func(calls *int) error {
				if *calls < 3 {
					return conflictErr()
				}
				return nil
			},
			options:   []retry.Option{retry.WithBaseDelay(time.Millisecond), retry.WithJitterFactor(0)},
			wantCalls: 3,
		},
		{
			name:      "permanent error fails fast",
			fn:        func(*int) error { return errors.New("constraint violated") },
			wantCalls: 1,
			wantErr:   errors.New("constraint violated"),
		},
		{
			name:      "attempts exhausted",
			fn:        func(*int) error { return conflictErr() },
			options:   []retry.Option{retry.WithMaxAttempts(3), retry.WithBaseDelay(time.Millisecond), retry.WithJitterFactor(0)},
			wantCalls: 3,
			wantErr:   errs.ErrConflict,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int
			err := retry.Do(context.Background(), func(context.Context) error {
				calls++
				return tt.fn(&calls)
			}, tt.options...)
			require.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if errors.Is(tt.wantErr, errs.ErrConflict) {
				require.ErrorIs(t, err, errs.ErrConflict)
			} else {
				require.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var calls int
	err := retry.Do(ctx, func(context.Context) error {
		calls++
		return conflictErr()
	}, retry.WithBaseDelay(10*time.Second))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}

func TestDo_OptionValidation(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name    string
		option  retry.Option
		wantErr error
	}{
		{name: "zero attempts", option: retry.WithMaxAttempts(0), wantErr: retry.ErrInvalidMaxAttempts},
		{name: "negative delay", option: retry.WithBaseDelay(-time.Second), wantErr: retry.ErrNegativeBaseDelay},
		{name: "jitter above one", option: retry.WithJitterFactor(1.5), wantErr: retry.ErrInvalidJitterFactor},
		{name: "negative jitter", option: retry.WithJitterFactor(-0.1), wantErr: retry.ErrInvalidJitterFactor},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := retry.Do(context.Background(), func(context.Context) error { return nil }, tt.option)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
